package enums

// StockMovementKind tags a stock_movements row with what caused it.
type StockMovementKind string

const (
	StockMovementAuthorizationDecrement StockMovementKind = "authorization_decrement"
	StockMovementRestock                StockMovementKind = "restock"
)
