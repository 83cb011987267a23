// Package domain holds the shared data model for instruments, groups,
// snapshots, signals and trading rules that flow between the provider,
// indicator, rule and snapshot layers.
package domain

import "time"

// Market identifies which exchange family a canonical code belongs to.
type Market string

const (
	MarketCN Market = "cn"
	MarketUS Market = "us"
)

// Group is a user-defined label applied to one or more instruments.
type Group struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Instrument is a user-tracked symbol with its moving-average watch spec.
type Instrument struct {
	ID            int64      `json:"id" db:"id"`
	Symbol        string     `json:"symbol" db:"symbol"`
	DisplayName   string     `json:"display_name" db:"name"`
	MASpec        []int      `json:"ma_spec" db:"-"`
	MATypesRaw    string     `json:"-" db:"ma_types"`
	LastPrice     *float64   `json:"last_price" db:"current_price"`
	LastUpdatedAt *time.Time `json:"last_updated_at" db:"updated_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	Groups        []Group    `json:"groups" db:"-"`
}

// MaxPeriod returns the longest MA period declared for the instrument.
// Callers must guarantee MASpec is non-empty (invariant I1).
func (i Instrument) MaxPeriod() int {
	max := i.MASpec[0]
	for _, p := range i.MASpec[1:] {
		if p > max {
			max = p
		}
	}
	return max
}

// DataSource records whether an MA evaluation used an intraday quote or
// a historical k-line close.
type DataSource string

const (
	DataSourceRealtime   DataSource = "realtime"
	DataSourceKlineClose DataSource = "kline_close"
)

// MAResult is the per-period evaluation stored in a Snapshot.
type MAResult struct {
	MAPrice    float64    `json:"ma_price"`
	Reached    bool       `json:"reached"`
	Diff       float64    `json:"diff"`
	DiffPct    float64    `json:"diff_pct"`
	DataSource DataSource `json:"data_source"`
}

// Snapshot is a persisted per-instrument, per-date evaluation (invariant I2).
type Snapshot struct {
	ID           int64               `json:"id" db:"id"`
	InstrumentID int64               `json:"instrument_id" db:"stock_id"`
	Date         time.Time           `json:"date" db:"snapshot_date"`
	Price        float64             `json:"price" db:"price"`
	MAResults    map[string]MAResult `json:"ma_results" db:"-"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
}

// CalendarEntry records whether a single calendar date was a trading day.
type CalendarEntry struct {
	ID            int64     `db:"id"`
	Date          time.Time `db:"trade_date"`
	IsTradingDay  bool      `db:"is_trading_day"`
	Year          int       `db:"year"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// SignalKind is the directional verdict the rule engine assigns.
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
	SignalHold SignalKind = "hold"
)

// Signal is the append-only per-day output of the rule engine for an instrument.
type Signal struct {
	ID           int64                  `json:"id" db:"id"`
	InstrumentID int64                  `json:"instrument_id" db:"stock_id"`
	SignalDate   time.Time              `json:"signal_date" db:"signal_date"`
	Kind         SignalKind             `json:"kind" db:"signal_type"`
	Strength     int                    `json:"strength" db:"strength"`
	CurrentPrice float64                `json:"current_price" db:"current_price"`
	EntryPrice   *float64               `json:"entry_price" db:"entry_price"`
	StopLoss     *float64               `json:"stop_loss" db:"stop_loss"`
	TakeProfit   *float64               `json:"take_profit" db:"take_profit"`
	Triggers     []string               `json:"triggers" db:"-"`
	Indicators   map[string]interface{} `json:"indicators" db:"-"`
	Message      string                 `json:"message" db:"-"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}

// ConditionOperator enumerates the comparison and cross operators a rule
// condition may use.
type ConditionOperator string

const (
	OpGT            ConditionOperator = "gt"
	OpLT            ConditionOperator = "lt"
	OpGTE           ConditionOperator = "gte"
	OpLTE           ConditionOperator = "lte"
	OpEQ            ConditionOperator = "eq"
	OpCrossAbove    ConditionOperator = "cross_above"
	OpCrossBelow    ConditionOperator = "cross_below"
	OpBelowThreshold ConditionOperator = "below_threshold"
	OpAboveThreshold ConditionOperator = "above_threshold"
)

// TargetType distinguishes a condition's right-hand side: another
// indicator field, or a literal value.
type TargetType string

const (
	TargetIndicator TargetType = "indicator"
	TargetValue     TargetType = "value"
)

// ConditionSpec is one AND-composed clause of a TradingRule.
type ConditionSpec struct {
	Indicator       string            `json:"indicator"`
	Field           string            `json:"field"`
	Operator        ConditionOperator `json:"operator"`
	TargetType      TargetType        `json:"target_type"`
	TargetIndicator string            `json:"target_indicator,omitempty"`
	TargetField     string            `json:"target_field,omitempty"`
	TargetValue     *float64          `json:"target_value,omitempty"`
}

// PriceSpecType selects how a PriceSpec resolves to a price.
type PriceSpecType string

const (
	PriceTypeIndicator  PriceSpecType = "indicator"
	PriceTypePercentage PriceSpecType = "percentage"
	PriceTypeCurrent    PriceSpecType = "current"
)

// PriceBase selects the anchor a percentage PriceSpec is relative to.
type PriceBase string

const (
	PriceBaseEntry   PriceBase = "entry"
	PriceBaseCurrent PriceBase = "current"
)

// PriceSpec describes how to compute entry/stop-loss/take-profit prices.
type PriceSpec struct {
	Type      PriceSpecType `json:"type"`
	Indicator string        `json:"indicator,omitempty"`
	Field     string        `json:"field,omitempty"`
	Value     float64       `json:"value,omitempty"`
	Base      PriceBase     `json:"base,omitempty"`
}

// PriceConfig bundles the three price formulas a rule carries.
type PriceConfig struct {
	Entry      PriceSpec  `json:"entry"`
	StopLoss   *PriceSpec `json:"stop_loss,omitempty"`
	TakeProfit *PriceSpec `json:"take_profit,omitempty"`
}

// RuleKind mirrors SignalKind but excludes "hold" — a rule only ever fires buy or sell.
type RuleKind string

const (
	RuleBuy  RuleKind = "buy"
	RuleSell RuleKind = "sell"
)

// TradingRule is a JSON-declared buy/sell rule, compiled once at load time.
type TradingRule struct {
	ID                  int64           `json:"id" db:"id"`
	Name                string          `json:"name" db:"name"`
	Kind                RuleKind        `json:"kind" db:"rule_type"`
	Enabled             bool            `json:"enabled" db:"enabled"`
	Priority            int             `json:"priority" db:"priority"`
	Strength            int             `json:"strength" db:"strength"`
	Conditions          []ConditionSpec `json:"conditions" db:"-"`
	PriceConfig         PriceConfig     `json:"price_config" db:"-"`
	DescriptionTemplate string          `json:"description_template" db:"description_template"`
}

// RuleOutcome is the bundle a fired (or hold) rule produces.
type RuleOutcome struct {
	Kind       SignalKind             `json:"kind"`
	Entry      *float64               `json:"entry_price"`
	StopLoss   *float64               `json:"stop_loss"`
	TakeProfit *float64               `json:"take_profit"`
	Strength   int                    `json:"strength"`
	Triggers   []string               `json:"triggers"`
	Indicators map[string]interface{} `json:"indicators"`
	Message    string                 `json:"message"`
}
