package engineapi

import (
	"math"
	"strconv"
	"strings"
)

// DTOs raw del engine. Solo se usan dentro de este paquete.
// La conversión a domain se hace en mapping.go.
//
// Esquema:
//
//	GET  /params        → {"ok": bool, "params": {PREFER_MAKER, MAKER_FEE_BUY, MAKER_FEE_SELL,
//	                        FEE_RATE_BUY, FEE_RATE_SELL, SLIPPAGE, FEE_BUFFER_PCT, MIN_TP_PCT?, MIN_SL_PCT?}}
//	GET  /trades        → {"ok": bool, "items": [{side, time|ts, price, qty, fee}]}
//	POST /params/update ← {MIN_TP_PCT?, MIN_SL_PCT?} → {"ok": bool}
//
// El engine a veces serializa números como strings; flexFloat/flexBool lo toleran.

// paramsResponse es la respuesta de GET /params.
type paramsResponse struct {
	OK     bool      `json:"ok"`
	Params rawParams `json:"params"`
}

// rawParams son los parámetros de coste tal como los expone el engine.
type rawParams struct {
	PreferMaker  flexBool  `json:"PREFER_MAKER"`
	MakerFeeBuy  flexFloat `json:"MAKER_FEE_BUY"`
	MakerFeeSell flexFloat `json:"MAKER_FEE_SELL"`
	TakerFeeBuy  flexFloat `json:"FEE_RATE_BUY"`
	TakerFeeSell flexFloat `json:"FEE_RATE_SELL"`
	Slippage     flexFloat `json:"SLIPPAGE"`
	FeeBufferPct flexFloat `json:"FEE_BUFFER_PCT"`
	MinTPPct     flexFloat `json:"MIN_TP_PCT"`
	MinSLPct     flexFloat `json:"MIN_SL_PCT"`
}

// tradesResponse es la respuesta de GET /trades.
type tradesResponse struct {
	OK    bool       `json:"ok"`
	Items []rawTrade `json:"items"`
}

// rawTrade es un fill. El timestamp llega como "time" o como "ts",
// en segundos, milisegundos o ISO-8601.
type rawTrade struct {
	Side  string    `json:"side"`
	Time  flexTime  `json:"time"`
	TS    flexTime  `json:"ts"`
	Price flexFloat `json:"price"`
	Qty   flexFloat `json:"qty"`
	Fee   flexFloat `json:"fee"`
}

// updateRequest es el body parcial de POST /params/update.
type updateRequest struct {
	MinTPPct *float64 `json:"MIN_TP_PCT,omitempty"`
	MinSLPct *float64 `json:"MIN_SL_PCT,omitempty"`
}

// okResponse es la respuesta genérica {"ok": bool}.
type okResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// flexFloat acepta número, string numérico o null. Un valor ilegible queda como ausente.
type flexFloat struct {
	v  float64
	ok bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	f.v, f.ok = v, true
	return nil
}

// Or devuelve el valor o def si está ausente.
func (f flexFloat) Or(def float64) float64 {
	if !f.ok {
		return def
	}
	return f.v
}

// flexBool acepta true/false, 0/1 y sus variantes como string.
type flexBool struct {
	v  bool
	ok bool
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(unquote(b)) {
	case "true", "1", "yes", "on":
		f.v, f.ok = true, true
	case "false", "0", "no", "off":
		f.v, f.ok = false, true
	}
	return nil
}

// Or devuelve el valor o def si está ausente.
func (f flexBool) Or(def bool) bool {
	if !f.ok {
		return def
	}
	return f.v
}

// flexTime guarda el timestamp crudo; se interpreta en mapping.go.
type flexTime struct {
	raw string
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	s := unquote(b)
	if s != "null" {
		f.raw = s
	}
	return nil
}

func unquote(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
