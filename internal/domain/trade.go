package domain

import (
	"strings"
	"time"
)

// Side es el lado de un fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normaliza el lado que devuelve el engine ("BUY", "Sell", ...).
// Devuelve false si no es ni compra ni venta.
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

// RawTrade es un fill ya normalizado por el adapter. Inmutable una vez recibido.
type RawTrade struct {
	Side      Side
	Timestamp time.Time
	Price     float64
	Quantity  float64
	Fee       float64
}

// Valid indica si el fill puede entrar en la reconstrucción.
// Los registros con precio o cantidad no positivos se descartan. La fee puede
// ser negativa (rebate de maker).
func (t RawTrade) Valid() bool {
	if t.Side != SideBuy && t.Side != SideSell {
		return false
	}
	return t.Price > 0 && t.Quantity > 0
}

// Lot es una compra abierta pendiente de asignar. Solo vive dentro de la cola FIFO
// del Reconstructor; se reduce en sitio a medida que las ventas la consumen.
type Lot struct {
	Quantity  float64
	TotalCost float64 // price*qty + fee
	Timestamp time.Time
	Price     float64
}

// UnitCost devuelve el coste por unidad incluyendo la fee de compra.
func (l Lot) UnitCost() float64 {
	if l.Quantity <= 0 {
		return 0
	}
	return l.TotalCost / l.Quantity
}

// RoundTrip es una posición cerrada: una venta casada contra uno o más lotes.
type RoundTrip struct {
	EntryTime     time.Time // timestamp del primer lote tocado
	ExitTime      time.Time
	EntryPrice    float64
	ExitPrice     float64
	Quantity      float64 // cantidad efectivamente casada
	AllocatedCost float64
	PnL           float64
	Return        float64 // PnL / AllocatedCost, 0 si no hay coste asignado
}

// Returns extrae la serie de retornos en el mismo orden que los round trips.
func Returns(rts []RoundTrip) []float64 {
	out := make([]float64, len(rts))
	for i, rt := range rts {
		out[i] = rt.Return
	}
	return out
}
