package analytics

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/causal"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
	"github.com/davidleathers/causal-correlation-engine/internal/domain/event"
	"github.com/davidleathers/causal-correlation-engine/internal/service/correlation"
)

// EngineReader is the read-only engine surface the analyzer needs
type EngineReader interface {
	Capture() (*correlation.Snapshot, correlation.Statistics)
}

// Config bounds analyzer output
type Config struct {
	MaxPaths int `json:"max_paths" koanf:"max_paths" validate:"gte=1"`
	TopN     int `json:"top_n" koanf:"top_n" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{MaxPaths: 1000, TopN: 5}
}

// Analyzer computes statistics over an engine without mutating it. Every call,
// Summary included, works on one consistent capture of the engine.
type Analyzer struct {
	engine EngineReader
	cfg    Config
	logger *zap.Logger
	clock  event.Clock
}

type Option func(*Analyzer)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithClock(c event.Clock) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.clock = c
		}
	}
}

func NewAnalyzer(engine EngineReader, cfg Config, opts ...Option) (*Analyzer, error) {
	if engine == nil {
		return nil, errors.NewValidationError("MISSING_ENGINE", "engine is required").WithField("engine")
	}
	if cfg.MaxPaths < 1 {
		return nil, errors.NewValidationError("INVALID_ANALYZER_CONFIG", "max paths must be positive").WithField("max_paths")
	}
	if cfg.TopN < 1 {
		return nil, errors.NewValidationError("INVALID_ANALYZER_CONFIG", "top n must be positive").WithField("top_n")
	}
	a := &Analyzer{
		engine: engine,
		cfg:    cfg,
		logger: zap.NewNop(),
		clock:  event.RealClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// view is an indexed capture. Outgoing edges are kept in chain traversal order.
type view struct {
	events   []*event.Event
	byID     map[uuid.UUID]*event.Event
	rels     []*causal.Relationship
	outgoing map[uuid.UUID][]*causal.Relationship
	incoming map[uuid.UUID][]*causal.Relationship
	minConf  float64
	stats    correlation.Statistics
}

func (a *Analyzer) view() *view {
	s, stats := a.engine.Capture()
	v := &view{
		stats:    stats,
		events:   s.Events,
		byID:     make(map[uuid.UUID]*event.Event, len(s.Events)),
		rels:     s.Relationships,
		outgoing: make(map[uuid.UUID][]*causal.Relationship),
		incoming: make(map[uuid.UUID][]*causal.Relationship),
		minConf:  s.Config.MinConfidence,
	}
	for _, ev := range s.Events {
		v.byID[ev.ID] = ev
	}
	for _, rel := range s.Relationships {
		v.outgoing[rel.CauseID] = append(v.outgoing[rel.CauseID], rel)
		v.incoming[rel.EffectID] = append(v.incoming[rel.EffectID], rel)
	}
	for _, out := range v.outgoing {
		correlation.SortEdges(out)
	}
	return v
}

// Ranked pairs an event with an edge count
type Ranked struct {
	Event *event.Event `json:"event"`
	Count int          `json:"count"`
}

// MostInfluential ranks events by outgoing edge count. Events without effects
// are left out; n <= 0 returns every ranked event.
func (a *Analyzer) MostInfluential(n int) []Ranked {
	return a.view().mostInfluential(n)
}

func (v *view) mostInfluential(n int) []Ranked {
	return rank(v.events, v.outgoing, n)
}

// MostAffected ranks events by incoming edge count
func (a *Analyzer) MostAffected(n int) []Ranked {
	v := a.view()
	return rank(v.events, v.incoming, n)
}

func rank(events []*event.Event, edges map[uuid.UUID][]*causal.Relationship, n int) []Ranked {
	var out []Ranked
	for _, ev := range events {
		if c := len(edges[ev.ID]); c > 0 {
			out = append(out, Ranked{Event: ev, Count: c})
		}
	}
	slices.SortStableFunc(out, func(x, y Ranked) int { return y.Count - x.Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (a *Analyzer) CausalityTypeDistribution() map[causal.Type]int {
	return a.view().causalityTypes()
}

func (v *view) causalityTypes() map[causal.Type]int {
	dist := make(map[causal.Type]int)
	for _, rel := range v.rels {
		dist[rel.Type]++
	}
	return dist
}

func (a *Analyzer) StrengthDistribution() map[causal.Strength]int {
	dist := make(map[causal.Strength]int)
	for _, rel := range a.view().rels {
		dist[rel.Strength]++
	}
	return dist
}

// Interaction counts edges between a cause type and an effect type
type Interaction struct {
	Cause  event.Type `json:"cause_type"`
	Effect event.Type `json:"effect_type"`
	Count  int        `json:"count"`
}

// EventTypeInteractions counts edges per (cause type, effect type), most
// frequent first.
func (a *Analyzer) EventTypeInteractions() []Interaction {
	return a.view().interactions()
}

func (v *view) interactions() []Interaction {
	type pair struct{ cause, effect event.Type }
	counts := make(map[pair]int)
	var order []pair
	for _, rel := range v.rels {
		cause, effect := v.byID[rel.CauseID], v.byID[rel.EffectID]
		if cause == nil || effect == nil {
			continue
		}
		p := pair{cause.Type, effect.Type}
		if counts[p] == 0 {
			order = append(order, p)
		}
		counts[p]++
	}
	out := make([]Interaction, len(order))
	for i, p := range order {
		out[i] = Interaction{Cause: p.cause, Effect: p.effect, Count: counts[p]}
	}
	slices.SortStableFunc(out, func(x, y Interaction) int { return y.Count - x.Count })
	return out
}

// AverageWeightByType averages the composite causal weight per causality type
func (a *Analyzer) AverageWeightByType() map[causal.Type]float64 {
	return averageBy(a.view().rels, (*causal.Relationship).CausalWeight)
}

func (a *Analyzer) AverageConfidenceByType() map[causal.Type]float64 {
	return averageBy(a.view().rels, func(r *causal.Relationship) float64 { return r.Confidence })
}

func averageBy(rels []*causal.Relationship, value func(*causal.Relationship) float64) map[causal.Type]float64 {
	sums := make(map[causal.Type]float64)
	counts := make(map[causal.Type]int)
	for _, rel := range rels {
		sums[rel.Type] += value(rel)
		counts[rel.Type]++
	}
	out := make(map[causal.Type]float64, len(sums))
	for t, s := range sums {
		out[t] = s / float64(counts[t])
	}
	return out
}

// Bucket is a time slice measured from the earliest event
type Bucket struct {
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Label       string `json:"label"`
	Count       int    `json:"count"`
}

// TemporalDistribution counts events per bucket of bucketMinutes, starting at
// the earliest event. Empty buckets are omitted.
func (a *Analyzer) TemporalDistribution(bucketMinutes int) ([]Bucket, error) {
	if bucketMinutes <= 0 {
		return nil, errors.NewValidationError("INVALID_BUCKET",
			fmt.Sprintf("bucket size must be positive, got %d", bucketMinutes)).WithField("bucket_minutes")
	}
	v := a.view()
	if len(v.events) == 0 {
		return []Bucket{}, nil
	}

	start := v.events[0].Timestamp
	for _, ev := range v.events[1:] {
		if ev.Timestamp.Before(start) {
			start = ev.Timestamp
		}
	}

	counts := make(map[int]int)
	for _, ev := range v.events {
		idx := int(ev.Timestamp.Sub(start).Minutes()) / bucketMinutes
		counts[idx]++
	}
	out := make([]Bucket, 0, len(counts))
	for idx, c := range counts {
		lo, hi := idx*bucketMinutes, (idx+1)*bucketMinutes
		out = append(out, Bucket{StartMinute: lo, EndMinute: hi, Label: fmt.Sprintf("%d-%d min", lo, hi), Count: c})
	}
	slices.SortFunc(out, func(x, y Bucket) int { return x.StartMinute - y.StartMinute })
	return out, nil
}

// SeverityMetrics aggregates outgoing influence for one severity level
type SeverityMetrics struct {
	AvgEffects    float64 `json:"avg_effects"`
	AvgConfidence float64 `json:"avg_confidence"`
	EventCount    int     `json:"event_count"`
}

// SeverityImpact averages effect counts per severity and, over events with at
// least one effect, the mean confidence of their outgoing edges.
func (a *Analyzer) SeverityImpact() map[event.Severity]SeverityMetrics {
	v := a.view()
	type acc struct {
		effects, confSum float64
		events, withConf int
	}
	accs := make(map[event.Severity]*acc)
	for _, ev := range v.events {
		m, ok := accs[ev.Severity]
		if !ok {
			m = &acc{}
			accs[ev.Severity] = m
		}
		out := v.outgoing[ev.ID]
		m.events++
		m.effects += float64(len(out))
		if len(out) > 0 {
			var sum float64
			for _, rel := range out {
				sum += rel.Confidence
			}
			m.confSum += sum / float64(len(out))
			m.withConf++
		}
	}

	result := make(map[event.Severity]SeverityMetrics, len(accs))
	for sev, m := range accs {
		sm := SeverityMetrics{EventCount: m.events, AvgEffects: m.effects / float64(m.events)}
		if m.withConf > 0 {
			sm.AvgConfidence = m.confSum / float64(m.withConf)
		}
		result[sev] = sm
	}
	return result
}

// Path is a causal chain with its mean edge metrics
type Path struct {
	Events            []*event.Event `json:"events"`
	AverageWeight     float64        `json:"average_weight"`
	AverageConfidence float64        `json:"average_confidence"`
}

func (p Path) Titles() []string {
	out := make([]string, len(p.Events))
	for i, ev := range p.Events {
		out[i] = ev.Title
	}
	return out
}

// CriticalPaths walks effects depth first from every root event (no causes),
// following edges at or above the engine's confidence floor and never
// revisiting an event on the current path. Edges out of a node are tried in
// the same order GetCausalChain visits them. Every path prefix of at least
// minLength events is reported, up to MaxPaths, highest average weight first.
func (a *Analyzer) CriticalPaths(minLength int) ([]Path, error) {
	if minLength < 2 {
		return nil, errors.NewValidationError("INVALID_PATH_LENGTH",
			fmt.Sprintf("minimum path length must be at least 2, got %d", minLength)).WithField("min_length")
	}
	v := a.view()
	w := &pathWalker{v: v, minLength: minLength, maxPaths: a.cfg.MaxPaths}

	for _, root := range v.events {
		if len(v.incoming[root.ID]) > 0 {
			continue
		}
		w.explore(root, nil, nil, map[uuid.UUID]bool{})
		if w.capped {
			a.logger.Warn("critical path search capped", zap.Int("max_paths", a.cfg.MaxPaths))
			break
		}
	}

	slices.SortStableFunc(w.paths, func(x, y Path) int {
		switch {
		case x.AverageWeight > y.AverageWeight:
			return -1
		case x.AverageWeight < y.AverageWeight:
			return 1
		default:
			return len(y.Events) - len(x.Events)
		}
	})
	return w.paths, nil
}

type pathWalker struct {
	v         *view
	minLength int
	maxPaths  int
	paths     []Path
	capped    bool
}

func (w *pathWalker) explore(current *event.Event, path []*event.Event, edges []*causal.Relationship, onPath map[uuid.UUID]bool) {
	if w.capped {
		return
	}
	path = append(slices.Clip(path), current)
	onPath[current.ID] = true
	defer delete(onPath, current.ID)

	for _, rel := range w.v.outgoing[current.ID] {
		if rel.Confidence < w.v.minConf || onPath[rel.EffectID] {
			continue
		}
		next := w.v.byID[rel.EffectID]
		if next == nil {
			continue
		}
		w.explore(next, path, append(slices.Clip(edges), rel), onPath)
	}

	if len(path) >= w.minLength {
		w.record(path, edges)
	}
}

func (w *pathWalker) record(path []*event.Event, edges []*causal.Relationship) {
	if len(w.paths) >= w.maxPaths {
		w.capped = true
		return
	}
	var weight, conf float64
	for _, rel := range edges {
		weight += rel.CausalWeight()
		conf += rel.Confidence
	}
	n := float64(len(edges))
	w.paths = append(w.paths, Path{
		Events:            slices.Clone(path),
		AverageWeight:     weight / n,
		AverageConfidence: conf / n,
	})
}

// Report is the structured form of the summary report
type Report struct {
	ID                uuid.UUID              `json:"id"`
	GeneratedAt       time.Time              `json:"generated_at"`
	Statistics        correlation.Statistics `json:"statistics"`
	MostInfluential   []Ranked               `json:"most_influential"`
	CausalityTypes    map[string]int         `json:"causality_types"`
	TopInteractions   []Interaction          `json:"top_interactions"`
	AverageConfidence map[string]float64     `json:"average_confidence"`
}

// Summary aggregates the headline views into one record built from a single
// capture of the engine
func (a *Analyzer) Summary() *Report {
	v := a.view()
	r := &Report{
		ID:                uuid.New(),
		GeneratedAt:       a.clock.Now(),
		Statistics:        v.stats,
		MostInfluential:   v.mostInfluential(a.cfg.TopN),
		CausalityTypes:    make(map[string]int),
		AverageConfidence: make(map[string]float64),
	}
	for t, c := range v.causalityTypes() {
		r.CausalityTypes[t.String()] = c
	}
	for t, avg := range averageBy(v.rels, func(r *causal.Relationship) float64 { return r.Confidence }) {
		r.AverageConfidence[t.String()] = avg
	}
	r.TopInteractions = v.interactions()
	if len(r.TopInteractions) > a.cfg.TopN {
		r.TopInteractions = r.TopInteractions[:a.cfg.TopN]
	}
	return r
}

// GenerateSummaryReport renders Summary as plain text
func (a *Analyzer) GenerateSummaryReport() string {
	r := a.Summary()
	rule := strings.Repeat("=", 60)
	sub := strings.Repeat("-", 60)

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	line(rule)
	line("EVENT CORRELATION ANALYSIS REPORT")
	line(rule)
	line("")
	line("BASIC STATISTICS")
	line(sub)
	line("Total Events: %d", r.Statistics.TotalEvents)
	line("Total Relationships: %d", r.Statistics.TotalRelationships)
	line("Rules Applied: %d", r.Statistics.RulesApplied)
	line("Patterns Detected: %d", r.Statistics.PatternsDetected)
	line("")

	line("MOST INFLUENTIAL EVENTS (Top %d)", a.cfg.TopN)
	line(sub)
	for _, rk := range r.MostInfluential {
		line("  %s (%s): %d effects", rk.Event.Title, rk.Event.Type, rk.Count)
	}
	line("")

	line("CAUSALITY TYPE DISTRIBUTION")
	line(sub)
	for _, name := range sortedKeys(r.CausalityTypes) {
		line("  %s: %d", name, r.CausalityTypes[name])
	}
	line("")

	line("TOP EVENT TYPE INTERACTIONS")
	line(sub)
	for _, in := range r.TopInteractions {
		line("  %s -> %s: %d", in.Cause, in.Effect, in.Count)
	}
	line("")

	line("AVERAGE RELATIONSHIP CONFIDENCE BY TYPE")
	line(sub)
	for _, name := range sortedKeys(r.AverageConfidence) {
		line("  %s: %.2f", name, r.AverageConfidence[name])
	}
	line("")
	b.WriteString(rule)
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
