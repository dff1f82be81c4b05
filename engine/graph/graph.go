package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/FinSightAI/finsight-mvp/engine/symbols"
	"github.com/FinSightAI/finsight-mvp/pkg/repo"
)

// MarketGraph provides market-hierarchy operations on top of the generic
// Neo4j repository.
type MarketGraph struct {
	driver    neo4j.DriverWithContext
	companies *repo.Neo4jRepo[Company, string]
}

// New creates a MarketGraph.
func New(driver neo4j.DriverWithContext) *MarketGraph {
	return &MarketGraph{
		driver:    driver,
		companies: newCompanyRepo(driver),
	}
}

func newCompanyRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[Company, string] {
	return repo.NewNeo4jRepo[Company, string](
		driver,
		"Company",
		companyToMap,
		companyFromRecord,
		repo.WithIDKey[Company, string]("id"),
	)
}

func companyToMap(c Company) map[string]any {
	return map[string]any{"id": c.Symbol, "name": c.Name, "aliases": c.Aliases}
}

func companyFromRecord(r *neo4j.Record) (Company, error) {
	node, ok := r.Get("n")
	if !ok {
		return Company{}, fmt.Errorf("graph: record missing node")
	}
	props := node.(neo4j.Node).Props
	c := Company{}
	if v, ok := props["id"].(string); ok {
		c.Symbol = v
	}
	if v, ok := props["name"].(string); ok {
		c.Name = v
	}
	if vs, ok := props["aliases"].([]any); ok {
		for _, v := range vs {
			if s, ok := v.(string); ok {
				c.Aliases = append(c.Aliases, s)
			}
		}
	}
	return c, nil
}

// GetCompany returns a company node by symbol.
func (g *MarketGraph) GetCompany(ctx context.Context, symbol string) (Company, error) {
	return g.companies.Get(ctx, symbol)
}

// Seed writes the mapping data into the graph: Company, Sector and Regulator
// nodes with IN_SECTOR and REGULATES relationships. MERGE keeps it idempotent.
func (g *MarketGraph) Seed(ctx context.Context, d symbols.Data) error {
	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	// Company aliases: invert name->symbol so each symbol carries its names.
	names := make(map[string][]string)
	for name, sym := range d.Companies {
		names[sym] = append(names[sym], name)
	}

	for sector, syms := range d.Sectors {
		if _, err := sess.Run(ctx,
			`MERGE (s:Sector {name: $name})`,
			map[string]any{"name": sector},
		); err != nil {
			return fmt.Errorf("graph: seed sector %s: %w", sector, err)
		}
		for _, sym := range syms {
			if _, err := sess.Run(ctx,
				`MERGE (c:Company {id: $symbol})
				 SET c.name = coalesce($name, c.name), c.aliases = $aliases
				 WITH c
				 MATCH (s:Sector {name: $sector})
				 MERGE (c)-[:IN_SECTOR]->(s)`,
				map[string]any{
					"symbol":  sym,
					"name":    firstOrNil(names[sym]),
					"aliases": names[sym],
					"sector":  sector,
				},
			); err != nil {
				return fmt.Errorf("graph: seed company %s: %w", sym, err)
			}
		}
	}

	for reg, sectors := range d.Regulators {
		if _, err := sess.Run(ctx,
			`MERGE (r:Regulator {name: $name})`,
			map[string]any{"name": reg},
		); err != nil {
			return fmt.Errorf("graph: seed regulator %s: %w", reg, err)
		}
		for _, sector := range sectors {
			if sector == symbols.AllSectors {
				if _, err := sess.Run(ctx,
					`MATCH (r:Regulator {name: $reg}), (s:Sector)
					 MERGE (r)-[:REGULATES]->(s)`,
					map[string]any{"reg": reg},
				); err != nil {
					return fmt.Errorf("graph: seed regulator %s scope: %w", reg, err)
				}
				continue
			}
			if _, err := sess.Run(ctx,
				`MERGE (s:Sector {name: $sector})
				 WITH s
				 MATCH (r:Regulator {name: $reg})
				 MERGE (r)-[:REGULATES]->(s)`,
				map[string]any{"sector": sector, "reg": reg},
			); err != nil {
				return fmt.Errorf("graph: seed regulates %s->%s: %w", reg, sector, err)
			}
		}
	}
	return nil
}

// LoadTable snapshots the graph into an immutable lookup table. The engine
// only ever reads the snapshot, keeping expansion deterministic between
// reloads.
func (g *MarketGraph) LoadTable(ctx context.Context) (*symbols.Table, error) {
	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	d := symbols.Data{
		Companies:  make(map[string]string),
		Sectors:    make(map[string][]string),
		Regulators: make(map[string][]string),
	}

	res, err := sess.Run(ctx,
		`MATCH (c:Company)-[:IN_SECTOR]->(s:Sector)
		 RETURN c.id AS symbol, c.aliases AS aliases, s.name AS sector`,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("graph: load companies: %w", err)
	}
	if err := drain(ctx, res, func(rec *neo4j.Record) { applyCompanyRow(&d, rec) }); err != nil {
		return nil, fmt.Errorf("graph: load companies: %w", err)
	}

	res, err = sess.Run(ctx,
		`MATCH (r:Regulator)-[:REGULATES]->(s:Sector)
		 RETURN r.name AS regulator, s.name AS sector`,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("graph: load regulators: %w", err)
	}
	if err := drain(ctx, res, func(rec *neo4j.Record) { applyRegulatorRow(&d, rec) }); err != nil {
		return nil, fmt.Errorf("graph: load regulators: %w", err)
	}

	return symbols.New(d), nil
}

// rowSource is the slice of a neo4j result the snapshot loader consumes.
type rowSource interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// drain folds every row into apply and surfaces a mid-stream failure, so a
// broken result is never mistaken for an empty graph.
func drain(ctx context.Context, res rowSource, apply func(*neo4j.Record)) error {
	for res.Next(ctx) {
		apply(res.Record())
	}
	return res.Err()
}

// applyCompanyRow folds one company/sector row into the snapshot. Rows with
// an empty symbol or sector are skipped.
func applyCompanyRow(d *symbols.Data, rec *neo4j.Record) {
	symbol, _ := rec.Get("symbol")
	sector, _ := rec.Get("sector")
	sym, _ := symbol.(string)
	sec, _ := sector.(string)
	if sym == "" || sec == "" {
		return
	}
	d.Sectors[sec] = append(d.Sectors[sec], sym)
	if aliases, ok := rec.Get("aliases"); ok {
		if vs, ok := aliases.([]any); ok {
			for _, v := range vs {
				if name, ok := v.(string); ok && name != "" {
					d.Companies[name] = sym
				}
			}
		}
	}
}

// applyRegulatorRow folds one regulator/sector row into the snapshot.
func applyRegulatorRow(d *symbols.Data, rec *neo4j.Record) {
	regulator, _ := rec.Get("regulator")
	sector, _ := rec.Get("sector")
	reg, _ := regulator.(string)
	sec, _ := sector.(string)
	if reg == "" || sec == "" {
		return
	}
	d.Regulators[reg] = append(d.Regulators[reg], sec)
}

func firstOrNil(ss []string) any {
	if len(ss) == 0 {
		return nil
	}
	return ss[0]
}
