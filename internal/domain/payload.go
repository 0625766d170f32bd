package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPayload is returned when a strategy payload cannot be turned into a StrategyInstance.
var ErrInvalidPayload = errors.New("invalid strategy payload")

// Payload is the strategy-creation request as delivered by the ingestion boundary.
// JSON payloads decode through the same path since JSON is valid YAML.
type Payload struct {
	Name         string          `yaml:"name"`
	Side         string          `yaml:"side"`
	PositionSide string          `yaml:"positionSide"`
	Symbol       string          `yaml:"symbol"`
	Open         payloadOpen     `yaml:"open"`
	Settings     payloadSettings `yaml:"settings"`
}

type payloadOpen struct {
	AmountType string       `yaml:"amountType"`
	Amount     decimalField `yaml:"amount"`
	Leverage   intField     `yaml:"leverage"`
}

type payloadSettings struct {
	Deposit     decimalField `yaml:"deposit"`
	TP          decimalField `yaml:"tp"`
	Trail1      decimalField `yaml:"trail_1"`
	Trail2      decimalField `yaml:"trail_2"`
	TrailStep   decimalField `yaml:"trail_step"`
	OffsetShort decimalField `yaml:"offset_short"`
	OffsetPluse decimalField `yaml:"offset_pluse"`
	SLShort     decimalField `yaml:"sl_short"`
	GridLong    decimalList  `yaml:"grid_long"`
	MgLong      decimalList  `yaml:"mg_long"`
	OrderQuan   intField     `yaml:"order_quan"`
	ExtraMarg   decimalField `yaml:"extramarg"`
}

// decimalField accepts numbers and quoted numbers.
type decimalField struct{ decimal.Decimal }

func (d *decimalField) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", n.Line)
	}
	v, err := parseDecimal(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	d.Decimal = v
	return nil
}

// intField accepts integers and quoted integers.
type intField int

func (i *intField) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected an integer", n.Line)
	}
	v, err := strconv.Atoi(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid integer %q", n.Line, n.Value)
	}
	*i = intField(v)
	return nil
}

// decimalList accepts a sequence of numbers or a pipe-delimited string such as "1|2|3.5".
type decimalList []decimal.Decimal

func (l *decimalList) UnmarshalYAML(n *yaml.Node) error {
	var raw []string
	switch n.Kind {
	case yaml.ScalarNode:
		if strings.TrimSpace(n.Value) == "" {
			*l = nil
			return nil
		}
		raw = strings.Split(n.Value, "|")
	case yaml.SequenceNode:
		for _, c := range n.Content {
			raw = append(raw, c.Value)
		}
	default:
		return fmt.Errorf("line %d: expected a list or pipe-delimited string", n.Line)
	}
	out := make([]decimal.Decimal, 0, len(raw))
	for _, r := range raw {
		v, err := parseDecimal(r)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		out = append(out, v)
	}
	*l = out
	return nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q", s)
	}
	return v, nil
}

// DecodePayload parses a JSON or YAML strategy payload.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &p, nil
}

// Strategy validates the payload and builds a PENDING StrategyInstance from it.
// Grid and martingale lengths are checked by the grid planner, not here.
func (p *Payload) Strategy() (*StrategyInstance, error) {
	var errs []string

	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		errs = append(errs, "symbol must be set")
	}
	side := ParseOrderSide(p.Side)
	if side == "" {
		errs = append(errs, fmt.Sprintf("unsupported side %q", p.Side))
	}
	posSide := ParsePositionSide(p.PositionSide)
	if posSide == "" {
		errs = append(errs, fmt.Sprintf("unsupported positionSide %q", p.PositionSide))
	}
	if !p.Open.Amount.IsPositive() {
		errs = append(errs, "open.amount must be positive")
	}
	if p.Open.Leverage <= 0 {
		errs = append(errs, "open.leverage must be positive")
	}
	if !p.Settings.Deposit.IsPositive() {
		errs = append(errs, "settings.deposit must be positive")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(errs, "; "))
	}

	s := p.Settings
	return &StrategyInstance{
		Name:         p.Name,
		Symbol:       symbol,
		Side:         side,
		PositionSide: posSide,
		Open: OpenParams{
			AmountType: p.Open.AmountType,
			Amount:     p.Open.Amount.Decimal,
			Leverage:   int(p.Open.Leverage),
		},
		Settings: Settings{
			Deposit:     s.Deposit.Decimal,
			TP:          s.TP.Decimal,
			Trail1:      s.Trail1.Decimal,
			Trail2:      s.Trail2.Decimal,
			TrailStep:   s.TrailStep.Decimal,
			OffsetShort: s.OffsetShort.Decimal,
			OffsetPluse: s.OffsetPluse.Decimal,
			SLShort:     s.SLShort.Decimal,
			GridLong:    []decimal.Decimal(s.GridLong),
			MgLong:      []decimal.Decimal(s.MgLong),
			OrderQuan:   int(s.OrderQuan),
			ExtraMarg:   s.ExtraMarg.Decimal,
		},
		Status: StrategyPending,
	}, nil
}
