package sectorimpact

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

// Category classifies the triggering event
type Category int

const (
	Breakthrough Category = iota
	Crisis
	Regulation
)

func (c Category) String() string {
	switch c {
	case Breakthrough:
		return "breakthrough"
	case Crisis:
		return "crisis"
	case Regulation:
		return "regulation"
	default:
		return "unknown"
	}
}

func ParseCategory(s string) (Category, error) {
	for _, c := range []Category{Breakthrough, Crisis, Regulation} {
		if c.String() == strings.ToLower(s) {
			return c, nil
		}
	}
	return 0, errors.NewValidationError("INVALID_CATEGORY",
		fmt.Sprintf("unknown impact category %q", s)).WithField("category")
}

// ModifierTable scales a propagated effect by category and edge qualifier
type ModifierTable map[Category]map[Qualifier]float64

// DefaultModifiers keeps the one hop effect ratios of the market simulation
// once the default decay is applied.
func DefaultModifiers() ModifierTable {
	return ModifierTable{
		Breakthrough: {Strengthens: 1.0, DependsOn: 2.0 / 3.0, CompetesWith: -1.0 / 3.0},
		Crisis:       {Strengthens: 2.0 / 3.0, DependsOn: 1.0, CompetesWith: -1.0 / 3.0},
		Regulation:   {Strengthens: 1.0 / 3.0, DependsOn: 0.5, CompetesWith: 0},
	}
}

// Config bounds the walk
type Config struct {
	HopLimit    int     `json:"hop_limit" koanf:"hop_limit" validate:"gte=1"`
	DecayFactor float64 `json:"decay_factor" koanf:"decay_factor" validate:"gt=0,lte=1"`
}

func DefaultConfig() Config {
	return Config{HopLimit: 2, DecayFactor: 0.3}
}

func (c Config) Validate() error {
	if c.HopLimit < 1 {
		return errors.NewValidationError("INVALID_PROPAGATOR_CONFIG",
			fmt.Sprintf("hop limit must be positive, got %d", c.HopLimit)).WithField("hop_limit")
	}
	if !(c.DecayFactor > 0 && c.DecayFactor <= 1) {
		return errors.NewValidationError("INVALID_PROPAGATOR_CONFIG",
			fmt.Sprintf("decay factor must be within (0,1], got %v", c.DecayFactor)).WithField("decay_factor")
	}
	return nil
}

// Impact is a primary shock to one sector. Magnitude is a relative change,
// +0.25 meaning a 25% rise.
type Impact struct {
	Sector    Sector   `json:"sector"`
	Magnitude float64  `json:"magnitude"`
	Category  Category `json:"category"`
}

// Effect is the secondary change reached by a sector
type Effect struct {
	Sector Sector  `json:"sector"`
	Change float64 `json:"change"`
	Hop    int     `json:"hop"`
	Via    Sector  `json:"via"`
}

// Result holds the primary impact and every secondary effect in discovery order
type Result struct {
	Primary   Impact   `json:"primary"`
	Secondary []Effect `json:"secondary"`
}

// Effect returns the secondary effect for s, if any
func (r *Result) Effect(s Sector) (Effect, bool) {
	for _, e := range r.Secondary {
		if e.Sector == s {
			return e, true
		}
	}
	return Effect{}, false
}

// Multipliers maps every affected sector to 1 + change, rounded to 4 places
func (r *Result) Multipliers() map[Sector]decimal.Decimal {
	out := make(map[Sector]decimal.Decimal, len(r.Secondary)+1)
	one := decimal.NewFromInt(1)
	out[r.Primary.Sector] = one.Add(decimal.NewFromFloat(r.Primary.Magnitude)).Round(4)
	for _, e := range r.Secondary {
		out[e.Sector] = one.Add(decimal.NewFromFloat(e.Change)).Round(4)
	}
	return out
}

// ApplyToPrices scales each sector price by its multiplier, rounded to cents.
// Sectors without a multiplier keep their price.
func (r *Result) ApplyToPrices(prices map[Sector]decimal.Decimal) map[Sector]decimal.Decimal {
	mult := r.Multipliers()
	out := make(map[Sector]decimal.Decimal, len(prices))
	for s, p := range prices {
		if m, ok := mult[s]; ok {
			out[s] = p.Mul(m).Round(2)
			continue
		}
		out[s] = p
	}
	return out
}

// Recorder receives propagation metrics. *metrics.Registry satisfies it.
type Recorder interface {
	RecordPropagation(ctx context.Context, category string, affected int)
}

type Option func(*Propagator)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Propagator) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m Recorder) Option {
	return func(p *Propagator) {
		if m != nil {
			p.metrics = m
		}
	}
}

// Propagator spreads a primary sector impact over the sector graph. It is
// separate from causal chain traversal: it models sector coupling rather than
// event causality.
type Propagator struct {
	graph     *Graph
	modifiers ModifierTable
	cfg       Config
	logger    *zap.Logger
	metrics   Recorder
}

func NewPropagator(graph *Graph, modifiers ModifierTable, cfg Config, opts ...Option) (*Propagator, error) {
	if graph == nil {
		return nil, errors.NewValidationError("MISSING_SECTOR_GRAPH", "sector graph is required").WithField("graph")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if modifiers == nil {
		modifiers = DefaultModifiers()
	}
	p := &Propagator{
		graph:     graph,
		modifiers: modifiers,
		cfg:       cfg,
		logger:    zap.NewNop(),
		metrics:   noopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Propagate walks the graph breadth first up to HopLimit hops. Each hop
// multiplies the parent's change by the decay factor and the category and
// qualifier modifier. A sector keeps the change from its lowest hop, the
// larger magnitude winning within a hop. The primary sector is never a
// secondary.
func (p *Propagator) Propagate(impact Impact) (*Result, error) {
	if !p.graph.Has(impact.Sector) {
		return nil, errors.NewNotFoundError("sector").WithID(impact.Sector)
	}
	mods, ok := p.modifiers[impact.Category]
	if !ok {
		return nil, errors.NewValidationError("INVALID_CATEGORY",
			fmt.Sprintf("no modifiers for category %s", impact.Category)).WithField("category")
	}
	if math.IsNaN(impact.Magnitude) || math.IsInf(impact.Magnitude, 0) {
		return nil, errors.NewValidationError("INVALID_MAGNITUDE", "magnitude must be finite").WithField("magnitude")
	}

	res := &Result{Primary: impact}
	index := make(map[Sector]int)
	change := map[Sector]float64{impact.Sector: impact.Magnitude}
	frontier := []Sector{impact.Sector}

	for hop := 1; hop <= p.cfg.HopLimit && len(frontier) > 0; hop++ {
		var next []Sector
		for _, from := range frontier {
			for _, edge := range p.graph.Outgoing(from) {
				if edge.To == impact.Sector {
					continue
				}
				c := change[from] * p.cfg.DecayFactor * mods[edge.Qualifier]
				if c == 0 {
					continue
				}
				i, seen := index[edge.To]
				if !seen {
					index[edge.To] = len(res.Secondary)
					res.Secondary = append(res.Secondary, Effect{Sector: edge.To, Change: c, Hop: hop, Via: from})
					next = append(next, edge.To)
					continue
				}
				if res.Secondary[i].Hop == hop && math.Abs(c) > math.Abs(res.Secondary[i].Change) {
					res.Secondary[i].Change = c
					res.Secondary[i].Via = from
				}
			}
		}
		for _, s := range next {
			change[s] = res.Secondary[index[s]].Change
		}
		frontier = next
	}

	p.metrics.RecordPropagation(context.Background(), impact.Category.String(), len(res.Secondary))
	p.logger.Debug("sector impact propagated",
		zap.String("sector", string(impact.Sector)),
		zap.String("category", impact.Category.String()),
		zap.Float64("magnitude", impact.Magnitude),
		zap.Int("sectors_affected", len(res.Secondary)))
	return res, nil
}

type noopRecorder struct{}

func (noopRecorder) RecordPropagation(context.Context, string, int) {}
