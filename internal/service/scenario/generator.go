package scenario

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
)

// Scenario names
const (
	CompetitiveMarket = "competitive_market"
	SupplyChainCrisis = "supply_chain_crisis"
	ProductLaunch     = "product_launch"
)

// Names lists the built-in scenarios in presentation order
func Names() []string {
	return []string{CompetitiveMarket, SupplyChainCrisis, ProductLaunch}
}

var scenarioNamespace = uuid.MustParse("a7f3c2d1-6b4e-4f0a-8c9d-2e1b5a7c3f60")

// Generator produces interconnected business event sequences. Output is fully
// determined by Start and Seed, event ids included.
type Generator struct {
	Start time.Time
	Seed  uint64
}

func NewGenerator(start time.Time, seed uint64) *Generator {
	return &Generator{Start: start.UTC(), Seed: seed}
}

// step is one scripted event. After moves the scenario cursor; Offset places
// the event relative to the cursor without moving it.
type step struct {
	after       time.Duration
	offset      time.Duration
	typ         event.Type
	severity    event.Severity
	title       string
	description string
	ctx         event.Context
	magnitude   float64
	attrs       map[string]any
}

type builder struct {
	name   string
	g      *Generator
	rng    *rand.Rand
	cursor time.Time
	events []*event.Event
	err    error
}

func (g *Generator) builder(name string) *builder {
	return &builder{
		name:   name,
		g:      g,
		rng:    rand.New(rand.NewPCG(g.Seed, uint64(len(name)))),
		cursor: g.Start,
	}
}

func (b *builder) add(s step) {
	if b.err != nil {
		return
	}
	b.cursor = b.cursor.Add(s.after)
	ts := b.cursor.Add(s.offset)
	id := uuid.NewSHA1(scenarioNamespace,
		[]byte(fmt.Sprintf("%s/%d/%d/%d", b.name, b.g.Seed, b.g.Start.UnixNano(), len(b.events))))

	ev, err := event.New(event.Params{
		ID:          id,
		Timestamp:   ts,
		Type:        s.typ,
		Severity:    s.severity,
		Title:       s.title,
		Description: s.description,
		Context:     s.ctx,
		Magnitude:   s.magnitude,
		Confidence:  1.0,
		Attributes:  s.attrs,
	})
	if err != nil {
		b.err = fmt.Errorf("scenario %s event %d: %w", b.name, len(b.events), err)
		return
	}
	b.events = append(b.events, ev)
}

func (b *builder) uniform(lo, hi float64) float64 {
	return lo + b.rng.Float64()*(hi-lo)
}

func (b *builder) result() ([]*event.Event, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.events, nil
}

// All generates every built-in scenario keyed by name
func (g *Generator) All() (map[string][]*event.Event, error) {
	gens := map[string]func() ([]*event.Event, error){
		CompetitiveMarket: g.CompetitiveMarket,
		SupplyChainCrisis: g.SupplyChainCrisis,
		ProductLaunch:     g.ProductLaunch,
	}
	out := make(map[string][]*event.Event, len(gens))
	for _, name := range Names() {
		events, err := gens[name]()
		if err != nil {
			return nil, err
		}
		out[name] = events
	}
	return out, nil
}

// Generate returns the named scenario
func (g *Generator) Generate(name string) ([]*event.Event, error) {
	switch name {
	case CompetitiveMarket:
		return g.CompetitiveMarket()
	case SupplyChainCrisis:
		return g.SupplyChainCrisis()
	case ProductLaunch:
		return g.ProductLaunch()
	default:
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
}

const day = 24 * time.Hour
