package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MarketStatus son las restricciones de trading de un símbolo en el exchange.
type MarketStatus struct {
	Symbol string // "BTC/USDT"

	// MinQuantity es la cantidad mínima (en base) aceptada por el exchange.
	MinQuantity decimal.Decimal
	// MinNotional es el valor mínimo price*quantity (en quote) de una orden.
	MinNotional decimal.Decimal

	PricePrecision    int32 // decimales permitidos en precios
	QuantityPrecision int32 // decimales permitidos en cantidades
}

// RoundPrice redondea un precio a la precisión del mercado.
func (m MarketStatus) RoundPrice(p decimal.Decimal) decimal.Decimal {
	return p.Round(m.PricePrecision)
}

// TruncateQuantity trunca una cantidad a la precisión del mercado.
// Siempre hacia abajo: redondear hacia arriba podría gastar balance inexistente.
func (m MarketStatus) TruncateQuantity(q decimal.Decimal) decimal.Decimal {
	return q.Truncate(m.QuantityPrecision)
}

// ValidOrder devuelve true si (price, quantity) respeta los mínimos del mercado.
func (m MarketStatus) ValidOrder(price, quantity decimal.Decimal) bool {
	if quantity.LessThan(m.MinQuantity) {
		return false
	}
	if m.MinNotional.IsPositive() && price.IsPositive() &&
		price.Mul(quantity).LessThan(m.MinNotional) {
		return false
	}
	return true
}

// BaseAsset devuelve el asset base del símbolo ("BTC" en "BTC/USDT").
func (m MarketStatus) BaseAsset() string {
	base, _, _ := strings.Cut(m.Symbol, "/")
	return base
}

// QuoteAsset devuelve el asset quote del símbolo ("USDT" en "BTC/USDT").
func (m MarketStatus) QuoteAsset() string {
	_, quote, _ := strings.Cut(m.Symbol, "/")
	return quote
}
