// Package csvlog escribe el log append-only de evaluaciones en CSV.
//
// Una fila por reevaluación. Las listas por ventana van como JSON dentro de la
// celda para que el fichero se pueda cargar tal cual en pandas o una hoja de cálculo.
package csvlog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/alejandrodnm/riskadapt/internal/domain"
)

// Header son las columnas del log, en orden.
var Header = []string{
	"timestamp",
	"round_trip_count",
	"break_even_pct",
	"tp_final",
	"sl_final",
	"tp_list",
	"sl_list",
	"weights",
	"windows_used",
	"applied_tp",
	"applied_sl",
}

// Writer implementa ports.EvaluationLog sobre un fichero CSV.
type Writer struct {
	mu   sync.Mutex
	path string
}

// New crea un writer para path. El fichero se crea en el primer Append.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Path devuelve la ruta del fichero.
func (w *Writer) Path() string {
	return w.path
}

// Append añade la fila de eval. La cabecera solo se escribe si el fichero
// no existía o estaba vacío.
func (w *Writer) Append(_ context.Context, eval domain.Evaluation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("csvlog.Append: open %q: %w", w.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("csvlog.Append: stat %q: %w", w.path, err)
	}

	row, err := Row(eval)
	if err != nil {
		return fmt.Errorf("csvlog.Append: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(Header); err != nil {
			return fmt.Errorf("csvlog.Append: write header: %w", err)
		}
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("csvlog.Append: write row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csvlog.Append: flush: %w", err)
	}
	return nil
}

// Row serializa una evaluación en el orden de Header.
func Row(eval domain.Evaluation) ([]string, error) {
	tpList, err := jsonFloats(eval.Result.TPList())
	if err != nil {
		return nil, fmt.Errorf("tp_list: %w", err)
	}
	slList, err := jsonFloats(eval.Result.SLList())
	if err != nil {
		return nil, fmt.Errorf("sl_list: %w", err)
	}
	weights, err := jsonFloats(eval.Result.Weights())
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	used, err := json.Marshal(eval.Result.SampleSizes())
	if err != nil {
		return nil, fmt.Errorf("windows_used: %w", err)
	}

	return []string{
		eval.At.UTC().Format(time.RFC3339),
		strconv.Itoa(eval.RoundTrips),
		formatFloat(eval.Result.BreakEven),
		formatFloat(eval.Result.TP),
		formatFloat(eval.Result.SL),
		tpList,
		slList,
		weights,
		string(used),
		strconv.FormatBool(eval.AppliedTP),
		strconv.FormatBool(eval.AppliedSL),
	}, nil
}

// jsonFloats serializa una lista de floats; NaN (ventana sin TP) sale como null.
func jsonFloats(values []float64) (string, error) {
	out := make([]*float64, len(values))
	for i := range values {
		if !math.IsNaN(values[i]) {
			out[i] = &values[i]
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
