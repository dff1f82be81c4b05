// Package impact maps extracted entities to stock-symbol impact records.
// Mapping is pure and deterministic: identical entities and lookup tables
// always yield an identical impact list, enabling policy-version replay.
package impact

import (
	"log/slog"
	"sort"

	"github.com/FinSightAI/finsight-mvp/engine/domain"
	"github.com/FinSightAI/finsight-mvp/engine/symbols"
)

// Confidence policy constants.
const (
	DirectConfidence      = 1.0
	SectorConfidenceBase  = 0.6
	SectorConfidenceSlope = 0.2
	SectorConfidenceMin   = 0.6
	SectorConfidenceMax   = 0.8
	RegulatoryBase        = 0.5
	RegulatorySlope       = 0.4
	RegulatoryMin         = 0.5
	RegulatoryMax         = 0.9
)

// Diagnostic records one unresolvable entity. It is observability data, not
// an error: mapping never fails for lookup misses.
type Diagnostic struct {
	Entity domain.Entity
	Reason string
}

// Diagnostics tallies skipped entities for one mapping run.
type Diagnostics struct {
	Unresolved []Diagnostic
}

// Count returns the number of skipped entities.
func (d Diagnostics) Count() int { return len(d.Unresolved) }

// Mapper converts entities into stock impacts using an immutable lookup table.
type Mapper struct {
	table  *symbols.Table
	logger *slog.Logger
}

// New creates a Mapper over the given table.
func New(table *symbols.Table, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{table: table, logger: logger}
}

// MapEntities produces the impact records for an article's entities.
//
// Policy per entity type:
//   - company: exact/alias resolution yields a direct impact at confidence
//     1.0 regardless of extraction confidence; a fuzzy resolution carries the
//     entity's own confidence.
//   - sector: every constituent symbol gets a sector impact at
//     clamp(0.6 + 0.2·c, 0.6, 0.8).
//   - regulator: every target symbol gets a regulatory impact at
//     clamp(0.5 + 0.4·c, 0.5, 0.9).
//   - person/event: no impact; retained upstream as queryable entities.
//
// Unresolvable company/sector/regulator values are skipped silently and
// tallied in the returned diagnostics.
func (m *Mapper) MapEntities(entities []domain.Entity, articleID int64) ([]domain.StockImpact, Diagnostics) {
	var diags Diagnostics
	// Collapse duplicate (symbol, type) pairs keeping the higher confidence.
	best := make(map[impactKey]float64)

	record := func(symbol string, typ domain.ImpactType, confidence float64) {
		k := impactKey{symbol: symbol, typ: typ}
		if prev, ok := best[k]; !ok || confidence > prev {
			best[k] = confidence
		}
	}

	for _, e := range entities {
		switch e.Type {
		case domain.EntityCompany:
			res, ok := m.table.ResolveCompany(e.Value)
			if !ok {
				diags.Unresolved = append(diags.Unresolved, Diagnostic{Entity: e, Reason: "no symbol match"})
				continue
			}
			conf := DirectConfidence
			if !res.Exact {
				conf = e.Confidence
			}
			record(res.Symbol, domain.ImpactDirect, conf)

		case domain.EntitySector:
			syms := m.table.Constituents(e.Value)
			if len(syms) == 0 {
				diags.Unresolved = append(diags.Unresolved, Diagnostic{Entity: e, Reason: "unknown sector"})
				continue
			}
			conf := clamp(SectorConfidenceBase+SectorConfidenceSlope*e.Confidence, SectorConfidenceMin, SectorConfidenceMax)
			for _, s := range syms {
				record(s, domain.ImpactSector, conf)
			}

		case domain.EntityRegulator:
			syms := m.table.RegulatorTargets(e.Value)
			if len(syms) == 0 {
				diags.Unresolved = append(diags.Unresolved, Diagnostic{Entity: e, Reason: "unknown regulator"})
				continue
			}
			conf := clamp(RegulatoryBase+RegulatorySlope*e.Confidence, RegulatoryMin, RegulatoryMax)
			for _, s := range syms {
				record(s, domain.ImpactRegulatory, conf)
			}

		case domain.EntityPerson, domain.EntityEvent:
			// No deterministic symbol mapping; kept as queryable entities.
		}
	}

	impacts := make([]domain.StockImpact, 0, len(best))
	for k, conf := range best {
		impacts = append(impacts, domain.StockImpact{
			ArticleID:  articleID,
			Symbol:     k.symbol,
			Confidence: conf,
			Type:       k.typ,
		})
	}
	// Stable output order: confidence desc, symbol asc, type asc.
	sort.Slice(impacts, func(i, j int) bool {
		if impacts[i].Confidence != impacts[j].Confidence {
			return impacts[i].Confidence > impacts[j].Confidence
		}
		if impacts[i].Symbol != impacts[j].Symbol {
			return impacts[i].Symbol < impacts[j].Symbol
		}
		return impacts[i].Type < impacts[j].Type
	})

	if diags.Count() > 0 {
		m.logger.Debug("impact: unresolved entities", "count", diags.Count())
	}
	return impacts, diags
}

type impactKey struct {
	symbol string
	typ    domain.ImpactType
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
