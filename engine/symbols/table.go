// Package symbols provides immutable lookup tables mapping companies, sectors
// and regulators to tradable stock symbols. Lookups are pure functions over
// the table contents, so expansion stays deterministic and testable in
// isolation.
package symbols

import (
	"sort"
	"strings"

	"github.com/FinSightAI/finsight-mvp/pkg/fn"
)

// AllSectors is the sentinel sector meaning a regulator covers every listed
// symbol in the table.
const AllSectors = "All Sectors"

// Resolution is the outcome of a company lookup. Exact is true for direct and
// alias matches; false for partial (fuzzy) containment matches.
type Resolution struct {
	Symbol string
	Exact  bool
}

// Table holds the company/sector/regulator mappings. It is immutable after
// construction; all methods are safe for concurrent use.
type Table struct {
	companies  map[string]string   // normalized name -> symbol
	sectors    map[string][]string // canonical sector -> symbols
	regulators map[string][]string // upper-cased regulator -> sectors
	sectorOf   map[string]string   // symbol -> canonical sector (first listed wins)
	allSymbols []string            // sorted union of sector constituents
}

// Data is the raw mapping material used to build a Table.
type Data struct {
	Companies  map[string]string   `json:"companies"`
	Sectors    map[string][]string `json:"sectors"`
	Regulators map[string][]string `json:"regulators"`
}

// New builds an immutable Table from mapping data. Input maps are copied.
func New(d Data) *Table {
	t := &Table{
		companies:  make(map[string]string, len(d.Companies)),
		sectors:    make(map[string][]string, len(d.Sectors)),
		regulators: make(map[string][]string, len(d.Regulators)),
		sectorOf:   make(map[string]string),
	}
	for name, sym := range d.Companies {
		t.companies[normalizeName(name)] = sym
	}
	sectorNames := make([]string, 0, len(d.Sectors))
	for sector := range d.Sectors {
		sectorNames = append(sectorNames, sector)
	}
	sort.Strings(sectorNames)
	for _, sector := range sectorNames {
		syms := append([]string(nil), d.Sectors[sector]...)
		t.sectors[canonicalSector(sector)] = syms
		for _, s := range syms {
			if _, ok := t.sectorOf[s]; !ok {
				t.sectorOf[s] = canonicalSector(sector)
			}
		}
		t.allSymbols = append(t.allSymbols, syms...)
	}
	t.allSymbols = fn.Unique(t.allSymbols)
	sort.Strings(t.allSymbols)
	for reg, sectors := range d.Regulators {
		t.regulators[strings.ToUpper(reg)] = append([]string(nil), sectors...)
	}
	return t
}

// ResolveCompany maps a company name to a stock symbol. Direct and alias
// matches on the normalized name are exact; containment matches on names
// longer than three characters are fuzzy. Returns ok=false when nothing
// matches.
func (t *Table) ResolveCompany(name string) (Resolution, bool) {
	if name == "" {
		return Resolution{}, false
	}
	norm := normalizeName(name)
	if sym, ok := t.companies[norm]; ok {
		return Resolution{Symbol: sym, Exact: true}, true
	}
	// Partial containment, longest key first so "HDFC Bank Ltd" prefers
	// "hdfc bank" over "hdfc".
	bestKey := ""
	bestSym := ""
	for key, sym := range t.companies {
		if len(key) <= 3 {
			continue
		}
		if strings.Contains(norm, key) || strings.Contains(key, norm) {
			if len(key) > len(bestKey) {
				bestKey, bestSym = key, sym
			}
		}
	}
	if bestSym != "" {
		return Resolution{Symbol: bestSym, Exact: false}, true
	}
	return Resolution{}, false
}

// Constituents returns the symbols of a sector, or nil when the sector is
// unknown. Sector names are matched without a trailing "sector" suffix and
// case-insensitively.
func (t *Table) Constituents(sector string) []string {
	if sector == "" {
		return nil
	}
	syms, ok := t.sectors[canonicalSector(sector)]
	if !ok {
		return nil
	}
	return append([]string(nil), syms...)
}

// RegulatorTargets returns the deduplicated, sorted symbols affected by a
// regulator, fanning its sectors out to their constituents. A regulator over
// AllSectors covers every symbol in the table.
func (t *Table) RegulatorTargets(regulator string) []string {
	sectors, ok := t.regulators[strings.ToUpper(strings.TrimSpace(regulator))]
	if !ok {
		return nil
	}
	var syms []string
	for _, sector := range sectors {
		if sector == AllSectors {
			return append([]string(nil), t.allSymbols...)
		}
		syms = append(syms, t.Constituents(sector)...)
	}
	syms = fn.Unique(syms)
	sort.Strings(syms)
	return syms
}

// SectorOf returns the canonical sector of a symbol, for company→sector
// context expansion.
func (t *Table) SectorOf(symbol string) (string, bool) {
	s, ok := t.sectorOf[symbol]
	return s, ok
}

// Symbols returns every symbol known to the table, sorted.
func (t *Table) Symbols() []string {
	return append([]string(nil), t.allSymbols...)
}

// normalizeName lowercases and strips corporate suffixes and extra spaces.
func normalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range []string{" ltd.", " ltd", " limited", " inc.", " inc", " corp.", " corp", " co."} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.Join(strings.Fields(s), " ")
}

// canonicalSector title-cases a sector name and drops a "sector" suffix.
func canonicalSector(sector string) string {
	s := strings.TrimSpace(sector)
	ls := strings.ToLower(s)
	ls = strings.TrimSuffix(ls, " sector")
	words := strings.Fields(ls)
	for i, w := range words {
		if isAbbrev(w) {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// isAbbrev reports whether a short sector word is a known abbreviation kept
// upper-case (IT, FMCG-style tokens).
func isAbbrev(w string) bool {
	switch strings.ToUpper(w) {
	case "IT", "FMCG", "PSU", "NBFC":
		return true
	}
	return false
}
