package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyStatus is the lifecycle status of a StrategyInstance.
type StrategyStatus string

const (
	StrategyPending   StrategyStatus = "PENDING"
	StrategyActive    StrategyStatus = "ACTIVE"
	StrategyCompleted StrategyStatus = "COMPLETED"
	StrategyFailed    StrategyStatus = "FAILED"
)

// IsFinal reports whether the strategy can no longer trade.
func (s StrategyStatus) IsFinal() bool {
	return s == StrategyCompleted || s == StrategyFailed
}

// OpenParams describes the initial market entry.
type OpenParams struct {
	AmountType string          `json:"amountType" yaml:"amountType"`
	Amount     decimal.Decimal `json:"amount" yaml:"amount"`
	Leverage   int             `json:"leverage" yaml:"leverage"`
}

// Settings holds the grid, hedge and exit parameters. Percentages are expressed as 1 == 1%.
type Settings struct {
	Deposit     decimal.Decimal   `json:"deposit"`
	TP          decimal.Decimal   `json:"tp"`
	Trail1      decimal.Decimal   `json:"trail_1"`
	Trail2      decimal.Decimal   `json:"trail_2"`
	TrailStep   decimal.Decimal   `json:"trail_step"`
	OffsetShort decimal.Decimal   `json:"offset_short"`
	OffsetPluse decimal.Decimal   `json:"offset_pluse"`
	SLShort     decimal.Decimal   `json:"sl_short"`
	GridLong    []decimal.Decimal `json:"grid_long"`
	MgLong      []decimal.Decimal `json:"mg_long"`
	OrderQuan   int               `json:"order_quan"`
	ExtraMarg   decimal.Decimal   `json:"extramarg"`
}

// StrategyInstance is one activation of the hedge strategy on a symbol.
// Everything except Status and StatusReason is immutable after creation.
type StrategyInstance struct {
	ID           int64
	Name         string
	Symbol       string
	Side         OrderSide
	PositionSide PositionSide
	Open         OpenParams
	Settings     Settings
	Status       StrategyStatus
	StatusReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
