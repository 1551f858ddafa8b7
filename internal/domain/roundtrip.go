package domain

// roundtrip.go — reconstrucción FIFO de round trips a partir de fills.
//
// Cada compra abre un Lot. Cada venta consume lotes empezando por el más antiguo:
//
//	use       = min(remaining, lot.qty)
//	unit_cost = lot.total_cost / lot.qty
//	alloc    += unit_cost × use
//	pnl       = (price×qty − fee) − alloc
//	ret       = pnl / alloc
//
// Precondición: los fills llegan ordenados por tiempo. No se valida aquí.

// lotEpsilon es la cantidad por debajo de la cual un lote se considera agotado.
const lotEpsilon = 1e-12

// ReconstructReport resume lo que la reconstrucción tuvo que ignorar.
type ReconstructReport struct {
	Processed      int     // fills válidos procesados
	Discarded      int     // fills malformados (precio/cantidad ≤ 0, lado desconocido)
	UnmatchedSells int     // ventas que no encontraron ningún lote abierto
	UnmatchedQty   float64 // cantidad vendida por encima del inventario conocido (descartada)
}

// HasInventoryMismatch indica si alguna venta superó el inventario conocido.
func (r ReconstructReport) HasInventoryMismatch() bool {
	return r.UnmatchedSells > 0 || r.UnmatchedQty > lotEpsilon
}

// Reconstructor mantiene la cola FIFO de lotes abiertos. No es seguro para uso
// concurrente: cada pasada del loop crea uno nuevo a partir del histórico completo.
type Reconstructor struct {
	lots   []Lot
	report ReconstructReport
}

// NewReconstructor crea un Reconstructor sin inventario.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{}
}

// Add procesa un fill. Devuelve el round trip generado si el fill es una venta
// que casó contra al menos un lote.
func (r *Reconstructor) Add(t RawTrade) (RoundTrip, bool) {
	if !t.Valid() {
		r.report.Discarded++
		return RoundTrip{}, false
	}
	r.report.Processed++

	if t.Side == SideBuy {
		r.lots = append(r.lots, Lot{
			Quantity:  t.Quantity,
			TotalCost: t.Price*t.Quantity + t.Fee,
			Timestamp: t.Timestamp,
			Price:     t.Price,
		})
		return RoundTrip{}, false
	}
	return r.sell(t)
}

func (r *Reconstructor) sell(t RawTrade) (RoundTrip, bool) {
	remaining := t.Quantity
	proceeds := t.Price*t.Quantity - t.Fee

	var (
		allocated float64
		matched   float64
		touched   bool
		rt        = RoundTrip{ExitTime: t.Timestamp, ExitPrice: t.Price}
	)

	for remaining > lotEpsilon && len(r.lots) > 0 {
		lot := &r.lots[0]
		use := min(remaining, lot.Quantity)
		unitCost := lot.UnitCost()
		allocated += unitCost * use
		matched += use

		if !touched {
			rt.EntryTime = lot.Timestamp
			rt.EntryPrice = lot.Price
			touched = true
		}

		lot.Quantity -= use
		remaining -= use
		if lot.Quantity <= lotEpsilon {
			r.lots = r.lots[1:]
		} else {
			lot.TotalCost = unitCost * lot.Quantity
		}
	}

	if remaining > lotEpsilon {
		r.report.UnmatchedQty += remaining
	}
	if !touched {
		r.report.UnmatchedSells++
		return RoundTrip{}, false
	}

	rt.Quantity = matched
	rt.AllocatedCost = allocated
	rt.PnL = proceeds - allocated
	if allocated > 0 {
		rt.Return = rt.PnL / allocated
	}
	return rt, true
}

// OpenLots devuelve una copia de los lotes todavía abiertos, del más antiguo al más nuevo.
func (r *Reconstructor) OpenLots() []Lot {
	out := make([]Lot, len(r.lots))
	copy(out, r.lots)
	return out
}

// Report devuelve el resumen acumulado de la reconstrucción.
func (r *Reconstructor) Report() ReconstructReport {
	return r.report
}

// ReconstructRoundTrips procesa todos los fills en orden y devuelve los round trips
// cerrados, uno por venta que casó contra al menos un lote.
func ReconstructRoundTrips(trades []RawTrade) ([]RoundTrip, ReconstructReport) {
	r := NewReconstructor()
	var out []RoundTrip
	for _, t := range trades {
		if rt, ok := r.Add(t); ok {
			out = append(out, rt)
		}
	}
	return out, r.Report()
}
