package sectorimpact

import (
	"fmt"
	"strings"

	"github.com/davidleathers/causal-correlation-engine/internal/domain/errors"
)

// Sector identifies a market sector
type Sector string

const (
	SectorAI       Sector = "AI"
	SectorQuantum  Sector = "Quantum"
	SectorFinance  Sector = "Finance"
	SectorPharma   Sector = "Pharma"
	SectorEnergy   Sector = "Energy"
	SectorTelecom  Sector = "Telecom"
	SectorRobotics Sector = "Robotics"
)

// Qualifier describes how a sector edge transmits impact
type Qualifier int

const (
	// Strengthens: growth in From lifts To
	Strengthens Qualifier = iota
	// DependsOn: To depends on From
	DependsOn
	// CompetesWith: From and To compete for the same demand
	CompetesWith
)

func (q Qualifier) String() string {
	switch q {
	case Strengthens:
		return "strengthens"
	case DependsOn:
		return "depends_on"
	case CompetesWith:
		return "competes_with"
	default:
		return "unknown"
	}
}

func (q Qualifier) Valid() bool {
	return q >= Strengthens && q <= CompetesWith
}

func ParseQualifier(s string) (Qualifier, error) {
	for _, q := range []Qualifier{Strengthens, DependsOn, CompetesWith} {
		if q.String() == strings.ToLower(s) {
			return q, nil
		}
	}
	return 0, errors.NewValidationError("INVALID_QUALIFIER",
		fmt.Sprintf("unknown sector qualifier %q", s)).WithField("qualifier")
}

// Edge is a directed sector relationship
type Edge struct {
	From      Sector    `json:"from"`
	To        Sector    `json:"to"`
	Qualifier Qualifier `json:"qualifier"`
}

// Graph is a fixed directed graph over sectors. Outgoing edges keep
// insertion order.
type Graph struct {
	sectors  []Sector
	known    map[Sector]bool
	outgoing map[Sector][]Edge
}

func NewGraph(edges ...Edge) (*Graph, error) {
	g := &Graph{
		known:    make(map[Sector]bool),
		outgoing: make(map[Sector][]Edge),
	}
	for _, e := range edges {
		if err := g.add(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) add(e Edge) error {
	if e.From == "" || e.To == "" {
		return errors.NewValidationError("INVALID_SECTOR_EDGE", "edge endpoints are required").WithField("sector")
	}
	if e.From == e.To {
		return errors.NewValidationError("INVALID_SECTOR_EDGE",
			fmt.Sprintf("sector %s cannot relate to itself", e.From)).WithField("sector")
	}
	if !e.Qualifier.Valid() {
		return errors.NewValidationError("INVALID_SECTOR_EDGE",
			fmt.Sprintf("invalid qualifier %d", int(e.Qualifier))).WithField("qualifier")
	}
	for _, s := range []Sector{e.From, e.To} {
		if !g.known[s] {
			g.known[s] = true
			g.sectors = append(g.sectors, s)
		}
	}
	g.outgoing[e.From] = append(g.outgoing[e.From], e)
	return nil
}

// AddSector registers a sector that has no edges
func (g *Graph) AddSector(s Sector) {
	if !g.known[s] {
		g.known[s] = true
		g.sectors = append(g.sectors, s)
	}
}

func (g *Graph) Has(s Sector) bool {
	return g.known[s]
}

func (g *Graph) Sectors() []Sector {
	out := make([]Sector, len(g.sectors))
	copy(out, g.sectors)
	return out
}

func (g *Graph) Outgoing(s Sector) []Edge {
	out := make([]Edge, len(g.outgoing[s]))
	copy(out, g.outgoing[s])
	return out
}

// DefaultGraph is the seven sector map used by the market simulation
func DefaultGraph() *Graph {
	strengthens := map[Sector][]Sector{
		SectorAI:       {SectorRobotics, SectorPharma, SectorFinance, SectorTelecom},
		SectorQuantum:  {SectorAI, SectorFinance, SectorPharma, SectorEnergy},
		SectorFinance:  {SectorAI, SectorQuantum},
		SectorEnergy:   {SectorRobotics, SectorAI, SectorTelecom},
		SectorTelecom:  {SectorAI, SectorRobotics, SectorFinance},
		SectorRobotics: {SectorPharma},
	}
	// sector -> the sectors it depends on
	dependsOn := map[Sector][]Sector{
		SectorAI:       {SectorEnergy, SectorQuantum},
		SectorQuantum:  {SectorEnergy},
		SectorFinance:  {SectorTelecom, SectorAI},
		SectorPharma:   {SectorAI, SectorQuantum},
		SectorTelecom:  {SectorEnergy},
		SectorRobotics: {SectorAI, SectorEnergy, SectorTelecom},
	}
	order := []Sector{SectorAI, SectorQuantum, SectorFinance, SectorPharma, SectorEnergy, SectorTelecom, SectorRobotics}

	var edges []Edge
	for _, from := range order {
		for _, to := range strengthens[from] {
			edges = append(edges, Edge{From: from, To: to, Qualifier: Strengthens})
		}
	}
	for _, dependent := range order {
		for _, provider := range dependsOn[dependent] {
			edges = append(edges, Edge{From: provider, To: dependent, Qualifier: DependsOn})
		}
	}

	g, err := NewGraph(edges...)
	if err != nil {
		panic(fmt.Sprintf("default sector graph: %v", err))
	}
	for _, s := range order {
		g.AddSector(s)
	}
	return g
}
