// Package grid computes the averaging ladder, martingale sizes and hedge prices of a strategy.
// Everything here is pure decimal arithmetic with no I/O.
package grid

import (
	"fmt"

	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ports"
)

// DefaultFeePercent is added to the take-profit percentage of the initial take-profit order.
var DefaultFeePercent = decimal.RequireFromString("0.2")

var hundred = decimal.NewFromInt(100)

// Plan is the planner output for one strategy start.
type Plan struct {
	InitialPrice       decimal.Decimal
	LongOrders         []decimal.Decimal // limit prices, ladder index order
	MartingaleOrders   []decimal.Decimal // quantities matching LongOrders
	TakeProfitPrice    decimal.Decimal
	ShortOrderPrice    decimal.Decimal
	ShortOrderAmount   decimal.Decimal
	StopLossShortPrice decimal.Decimal
	TotalCost          decimal.Decimal
	SufficientFunds    bool
}

// Steps returns the number of ladder steps.
func (p *Plan) Steps() int {
	return len(p.LongOrders)
}

// Validate checks the grid configuration without planning.
func Validate(s domain.Settings) error {
	if s.OrderQuan <= 0 {
		return fmt.Errorf("%w: order_quan must be positive, got %d", ports.ErrInvalidGridConfiguration, s.OrderQuan)
	}
	if len(s.GridLong) != s.OrderQuan {
		return fmt.Errorf("%w: grid_long has %d steps, order_quan is %d", ports.ErrInvalidGridConfiguration, len(s.GridLong), s.OrderQuan)
	}
	if len(s.MgLong) != s.OrderQuan {
		return fmt.Errorf("%w: mg_long has %d steps, order_quan is %d", ports.ErrInvalidGridConfiguration, len(s.MgLong), s.OrderQuan)
	}
	for i, g := range s.GridLong {
		if g.IsNegative() || g.GreaterThanOrEqual(hundred) {
			return fmt.Errorf("%w: grid_long[%d]=%s out of range [0,100)", ports.ErrInvalidGridConfiguration, i, g)
		}
	}
	return nil
}

// New computes the ladder for a strategy entered at initialPrice.
func New(s domain.Settings, openAmount decimal.Decimal, leverage int, initialPrice, feePercent decimal.Decimal) (*Plan, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	if !initialPrice.IsPositive() {
		return nil, fmt.Errorf("%w: initial price must be positive, got %s", ports.ErrInvalidGridConfiguration, initialPrice)
	}
	if !openAmount.IsPositive() || leverage <= 0 {
		return nil, fmt.Errorf("%w: open amount and leverage must be positive", ports.ErrInvalidGridConfiguration)
	}

	p := &Plan{
		InitialPrice:     initialPrice,
		LongOrders:       make([]decimal.Decimal, s.OrderQuan),
		MartingaleOrders: make([]decimal.Decimal, s.OrderQuan),
	}

	price := initialPrice
	qty := openAmount
	for i := 0; i < s.OrderQuan; i++ {
		price = price.Mul(decreaseFactor(s.GridLong[i]))
		qty = qty.Mul(increaseFactor(s.MgLong[i]))
		p.LongOrders[i] = price
		p.MartingaleOrders[i] = qty
		p.TotalCost = p.TotalCost.Add(initialPrice.Mul(qty))
	}

	lev := decimal.NewFromInt(int64(leverage))
	p.TakeProfitPrice = initialPrice.Mul(increaseFactor(s.TP.Add(feePercent)))
	p.ShortOrderPrice = ShortPriceFor(p.LongOrders[len(p.LongOrders)-1], s.OffsetShort)
	p.ShortOrderAmount = ShortAmountFor(s.ExtraMarg, leverage, p.ShortOrderPrice)
	p.StopLossShortPrice = p.ShortOrderPrice.Mul(increaseFactor(s.SLShort))
	p.SufficientFunds = p.TotalCost.LessThanOrEqual(s.Deposit.Mul(lev))
	return p, nil
}

// ShortPriceFor returns the hedge stop-entry price below a ladder price.
func ShortPriceFor(limitPrice, offsetShort decimal.Decimal) decimal.Decimal {
	return limitPrice.Mul(decreaseFactor(offsetShort))
}

// ShortAmountFor returns the hedge quantity that margin at leverage buys at price.
func ShortAmountFor(margin decimal.Decimal, leverage int, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return margin.Mul(decimal.NewFromInt(int64(leverage))).Div(price)
}

// TakeProfitFromBreakEven returns the take-profit price after the ladder moved the break-even.
func TakeProfitFromBreakEven(adjustedBreakEven, tp decimal.Decimal) decimal.Decimal {
	return adjustedBreakEven.Mul(increaseFactor(tp))
}

// StopLossFor returns the hedge stop-loss price above a short entry.
func StopLossFor(entry, slShort decimal.Decimal) decimal.Decimal {
	return entry.Mul(increaseFactor(slShort))
}

// NextHedgePrice returns the re-entry price after a hedge was stopped out.
func NextHedgePrice(previous, offsetPluse decimal.Decimal) decimal.Decimal {
	return previous.Mul(decreaseFactor(offsetPluse))
}

func increaseFactor(pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(pct.Div(hundred))
}

func decreaseFactor(pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(pct.Div(hundred))
}
