package domain

// Defaults del engine cuando GET /params no responde o no trae el campo.
const (
	DefaultMakerFee     = 0.00075 // por lado
	DefaultTakerFee     = 0.0010  // por lado
	DefaultSlippage     = 0.0002
	DefaultFeeBufferPct = 0.0005
)

// FeeParams es la foto de los parámetros de coste del engine en un ciclo.
// Se vuelve a leer en cada evaluación: otros sistemas pueden cambiarlos.
type FeeParams struct {
	PreferMaker  bool
	MakerFeeBuy  float64
	MakerFeeSell float64
	TakerFeeBuy  float64
	TakerFeeSell float64
	Slippage     float64
	FeeBufferPct float64
	MinTPPct     float64 // TP activo en el engine (0 si no lo reporta)
	MinSLPct     float64 // SL activo en el engine (0 si no lo reporta)
}

// DefaultFeeParams devuelve el perfil maker con las fees por defecto.
func DefaultFeeParams() FeeParams {
	return FeeParams{
		PreferMaker:  true,
		MakerFeeBuy:  DefaultMakerFee,
		MakerFeeSell: DefaultMakerFee,
		TakerFeeBuy:  DefaultTakerFee,
		TakerFeeSell: DefaultTakerFee,
		Slippage:     DefaultSlippage,
		FeeBufferPct: DefaultFeeBufferPct,
	}
}

// BreakEven calcula el coste total de un round trip como fracción del nocional.
//
// Fórmula:
//
//	fees      = maker_buy + maker_sell   (prefer_maker)
//	          | taker_buy + taker_sell   (si no)
//	breakEven = fees + slippage + buffer
func (p FeeParams) BreakEven() float64 {
	fees := p.TakerFeeBuy + p.TakerFeeSell
	if p.PreferMaker {
		fees = p.MakerFeeBuy + p.MakerFeeSell
	}
	return fees + p.Slippage + p.FeeBufferPct
}

// Profile devuelve "maker" o "taker" según el perfil activo.
func (p FeeParams) Profile() string {
	if p.PreferMaker {
		return "maker"
	}
	return "taker"
}
