package storage

// sqlite.go — histórico local del gestor de riesgo.
//
// Estrategia:
//   - `evaluations`: una fila por reevaluación (TP/SL final, break-even, qué se aplicó).
//     El detalle por ventana va como JSON; se consulta poco y solo para auditoría.
//   - `applied_updates`: una fila por push exitoso al engine. De aquí sale el
//     AppliedState si se pide restaurarlo al arrancar.
//   - `roundtrips`: round trips cerrados, deduplicados por (entry_ts, exit_ts).
//     Los fills del engine pueden rotar; este histórico no.
//   - Prune automático al arrancar: evaluations > 90d.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/riskadapt/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
    id           TEXT PRIMARY KEY,
    evaluated_at DATETIME NOT NULL,
    round_trips  INTEGER  NOT NULL DEFAULT 0,
    fee_profile  TEXT     NOT NULL DEFAULT '',
    params_ok    INTEGER  NOT NULL DEFAULT 0,
    break_even   REAL     NOT NULL DEFAULT 0,
    tp_final     REAL     NOT NULL DEFAULT 0,
    sl_final     REAL     NOT NULL DEFAULT 0,
    windows_json TEXT     NOT NULL DEFAULT '[]',
    applied_tp   INTEGER  NOT NULL DEFAULT 0,
    applied_sl   INTEGER  NOT NULL DEFAULT 0,
    dry_run      INTEGER  NOT NULL DEFAULT 0,
    apply_error  TEXT     NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS applied_updates (
    id            TEXT PRIMARY KEY,
    evaluation_id TEXT     NOT NULL,
    applied_at    DATETIME NOT NULL,
    tp            REAL,
    sl            REAL
);

CREATE TABLE IF NOT EXISTS roundtrips (
    entry_ts       DATETIME NOT NULL,
    exit_ts        DATETIME NOT NULL,
    entry_price    REAL     NOT NULL DEFAULT 0,
    exit_price     REAL     NOT NULL DEFAULT 0,
    quantity       REAL     NOT NULL DEFAULT 0,
    allocated_cost REAL     NOT NULL DEFAULT 0,
    pnl            REAL     NOT NULL DEFAULT 0,
    ret            REAL     NOT NULL DEFAULT 0,
    PRIMARY KEY (entry_ts, exit_ts)
);

CREATE INDEX IF NOT EXISTS idx_eval_at    ON evaluations(evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_applied_at ON applied_updates(applied_at DESC);
CREATE INDEX IF NOT EXISTS idx_rt_exit    ON roundtrips(exit_ts);
`

const retentionEvaluations = 90 * 24 * time.Hour

// windowRow es el detalle por ventana que se guarda en windows_json.
type windowRow struct {
	Size     int     `json:"size"`
	Weight   float64 `json:"weight"`
	Samples  int     `json:"samples"`
	TP       float64 `json:"tp"`
	HasTP    bool    `json:"has_tp"`
	HitRate  float64 `json:"hit_rate"`
	Net      float64 `json:"net_per_trade"`
	SL       float64 `json:"sl"`
	SLMethod string  `json:"sl_method"`
	Losses   int     `json:"losses"`
}

// SQLiteStorage implementa ports.HistoryStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia evaluaciones antiguas.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveEvaluation persiste el resumen de una evaluación.
func (s *SQLiteStorage) SaveEvaluation(ctx context.Context, eval domain.Evaluation) error {
	rows := make([]windowRow, 0, len(eval.Result.Windows))
	for _, w := range eval.Result.Windows {
		rows = append(rows, windowRow{
			Size:     w.Spec.Size,
			Weight:   w.Spec.Weight,
			Samples:  w.Samples,
			TP:       w.TP.TP,
			HasTP:    w.TP.HasTP,
			HitRate:  w.TP.HitRate,
			Net:      w.TP.NetPerTrade,
			SL:       w.SL.SL,
			SLMethod: w.SL.Method,
			Losses:   w.SL.Losses,
		})
	}
	windowsJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("storage.SaveEvaluation: marshal windows: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations
			(id, evaluated_at, round_trips, fee_profile, params_ok, break_even,
			 tp_final, sl_final, windows_json, applied_tp, applied_sl, dry_run, apply_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		eval.ID,
		eval.At.UTC(),
		eval.RoundTrips,
		eval.Params.Profile(),
		boolInt(eval.ParamsOK),
		eval.Result.BreakEven,
		eval.Result.TP,
		eval.Result.SL,
		string(windowsJSON),
		boolInt(eval.AppliedTP),
		boolInt(eval.AppliedSL),
		boolInt(eval.DryRun),
		eval.ApplyErr,
	); err != nil {
		return fmt.Errorf("storage.SaveEvaluation: insert %s: %w", eval.ID, err)
	}
	return nil
}

// SaveAppliedUpdate registra un push exitoso.
func (s *SQLiteStorage) SaveAppliedUpdate(ctx context.Context, u domain.AppliedUpdate) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO applied_updates (id, evaluation_id, applied_at, tp, sl) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.EvaluationID, u.At.UTC(), nullFloat(u.TP), nullFloat(u.SL),
	); err != nil {
		return fmt.Errorf("storage.SaveAppliedUpdate: insert %s: %w", u.ID, err)
	}
	return nil
}

// LastAppliedState reconstruye el AppliedState: último TP y último SL empujados
// (pueden venir de pushes distintos) y el timestamp del último push.
func (s *SQLiteStorage) LastAppliedState(ctx context.Context) (domain.AppliedState, error) {
	var st domain.AppliedState

	var lastAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT applied_at FROM applied_updates ORDER BY applied_at DESC LIMIT 1`,
	).Scan(&lastAt)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("storage.LastAppliedState: last apply: %w", err)
	}
	st.LastApplyAt = lastAt.UTC()

	tp, err := s.lastValue(ctx, "tp")
	if err != nil {
		return st, err
	}
	if tp.Valid {
		st.LastTP, st.HasTP = tp.Float64, true
	}

	sl, err := s.lastValue(ctx, "sl")
	if err != nil {
		return st, err
	}
	if sl.Valid {
		st.LastSL, st.HasSL = sl.Float64, true
	}
	return st, nil
}

func (s *SQLiteStorage) lastValue(ctx context.Context, column string) (sql.NullFloat64, error) {
	var v sql.NullFloat64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %[1]s FROM applied_updates WHERE %[1]s IS NOT NULL ORDER BY applied_at DESC LIMIT 1`, column,
	)).Scan(&v)
	if err == sql.ErrNoRows {
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("storage.LastAppliedState: last %s: %w", column, err)
	}
	return v, nil
}

// SaveRoundTrips hace upsert de los round trips. Los ya conocidos no se reescriben.
func (s *SQLiteStorage) SaveRoundTrips(ctx context.Context, rts []domain.RoundTrip) (int, error) {
	if len(rts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveRoundTrips: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO roundtrips
			(entry_ts, exit_ts, entry_price, exit_price, quantity, allocated_cost, pnl, ret)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_ts, exit_ts) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveRoundTrips: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, rt := range rts {
		res, err := stmt.ExecContext(ctx,
			rt.EntryTime.UTC(),
			rt.ExitTime.UTC(),
			rt.EntryPrice,
			rt.ExitPrice,
			rt.Quantity,
			rt.AllocatedCost,
			rt.PnL,
			rt.Return,
		)
		if err != nil {
			return 0, fmt.Errorf("storage.SaveRoundTrips: upsert: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.SaveRoundTrips: commit: %w", err)
	}
	return inserted, nil
}

// GetRoundTrips devuelve los round trips con exit_ts en [from, to], ordenados por exit.
func (s *SQLiteStorage) GetRoundTrips(ctx context.Context, from, to time.Time) ([]domain.RoundTrip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_ts, exit_ts, entry_price, exit_price, quantity, allocated_cost, pnl, ret
		FROM roundtrips
		WHERE exit_ts BETWEEN ? AND ?
		ORDER BY exit_ts ASC, entry_ts ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.GetRoundTrips: query: %w", err)
	}
	defer rows.Close()

	var out []domain.RoundTrip
	for rows.Next() {
		var rt domain.RoundTrip
		if err := rows.Scan(
			&rt.EntryTime,
			&rt.ExitTime,
			&rt.EntryPrice,
			&rt.ExitPrice,
			&rt.Quantity,
			&rt.AllocatedCost,
			&rt.PnL,
			&rt.Return,
		); err != nil {
			return nil, fmt.Errorf("storage.GetRoundTrips: scan row: %w", err)
		}
		rt.EntryTime = rt.EntryTime.UTC()
		rt.ExitTime = rt.ExitTime.UTC()
		out = append(out, rt)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina evaluaciones antiguas para mantener la DB ligera.
// Los pushes y los round trips se conservan: son el histórico que importa.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionEvaluations)
	s.db.ExecContext(ctx, `DELETE FROM evaluations WHERE evaluated_at < ?`, cutoff)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
