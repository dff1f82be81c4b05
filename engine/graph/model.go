// Package graph provides Neo4j operations for the market hierarchy:
// companies, their sectors, and the regulators over those sectors. The graph
// is the durable home of the hierarchy; the engine's lookups run against an
// immutable table snapshot taken by LoadTable, never against the live graph.
package graph

// Company is a listed company node.
type Company struct {
	Symbol  string   `json:"symbol"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// Sector is a market sector node.
type Sector struct {
	Name string `json:"name"`
}

// Regulator is a regulator node with REGULATES edges to sectors.
type Regulator struct {
	Name string `json:"name"`
}
