package domain

// SymbolPrecision is the number of fractional digits the exchange accepts for a symbol.
type SymbolPrecision struct {
	Symbol            string
	QuantityPrecision int32
	PricePrecision    int32
}
