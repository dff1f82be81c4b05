// Package finnlp extracts financial entities (companies, sectors, regulators,
// people, events) from unstructured text using alias tables and regex
// patterns. It implements the engine's entity-extractor contract locally; a
// model-backed extractor can replace it behind the same interface.
package finnlp

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/FinSightAI/finsight-mvp/engine/domain"
)

// companyAliases maps lowercase mentions to canonical company names.
var companyAliases = map[string]string{
	"hdfc bank":                 "HDFC Bank",
	"hdfc":                      "HDFC Bank",
	"icici bank":                "ICICI Bank",
	"icici":                     "ICICI Bank",
	"state bank of india":       "State Bank of India",
	"sbi":                       "State Bank of India",
	"reliance industries":       "Reliance Industries",
	"reliance":                  "Reliance Industries",
	"ril":                       "Reliance Industries",
	"infosys":                   "Infosys",
	"tata consultancy services": "TCS",
	"tcs":                       "TCS",
	"wipro":                     "Wipro",
	"bharti airtel":             "Bharti Airtel",
	"airtel":                    "Bharti Airtel",
	"itc":                       "ITC",
	"hindustan unilever":        "Hindustan Unilever",
	"hul":                       "Hindustan Unilever",
	"axis bank":                 "Axis Bank",
	"kotak mahindra bank":       "Kotak Mahindra Bank",
	"kotak bank":                "Kotak Mahindra Bank",
	"tata motors":               "Tata Motors",
	"maruti suzuki":             "Maruti Suzuki",
	"sun pharma":                "Sun Pharma",
}

// regulatorAliases maps lowercase mentions to canonical regulator names.
var regulatorAliases = map[string]string{
	"rbi":                           "RBI",
	"reserve bank of india":         "RBI",
	"reserve bank":                  "RBI",
	"sebi":                          "SEBI",
	"securities and exchange board": "SEBI",
	"irda":                          "IRDA",
	"irdai":                         "IRDA",
	"insurance regulatory":          "IRDA",
	"trai":                          "TRAI",
	"telecom regulatory authority":  "TRAI",
}

// sectorKeywords maps lowercase keywords to canonical sector names.
var sectorKeywords = map[string]string{
	"banking":        "Banking",
	"banks":          "Banking",
	"bank stocks":    "Banking",
	"it sector":      "IT",
	"it services":    "IT",
	"software":       "IT",
	"pharma":         "Pharma",
	"pharmaceutical": "Pharma",
	"auto":           "Auto",
	"automobile":     "Auto",
	"oil":            "Oil",
	"oil and gas":    "Oil",
	"energy":         "Oil",
	"telecom":        "Telecom",
	"retail":         "Retail",
	"steel":          "Steel",
	"cement":         "Cement",
	"power":          "Power",
	"electricity":    "Power",
}

// eventKeywords maps lowercase phrases to canonical event names.
var eventKeywords = map[string]string{
	"rate hike":           "rate hike",
	"rate cut":            "rate cut",
	"repo rate":           "repo rate change",
	"ipo":                 "IPO",
	"merger":              "merger",
	"acquisition":         "acquisition",
	"quarterly results":   "quarterly results",
	"earnings":            "earnings",
	"dividend":            "dividend",
	"buyback":             "buyback",
	"stock split":         "stock split",
	"downgrade":           "downgrade",
	"upgrade":             "upgrade",
	"default":             "default",
	"bankruptcy":          "bankruptcy",
	"policy announcement": "policy announcement",
}

// Confidence levels per match strategy.
const (
	aliasConfidence   = 0.95
	keywordConfidence = 0.85
	personConfidence  = 0.75
)

// personRe matches honorific-prefixed proper names, the only person signal a
// rule-based extractor can trust.
var personRe = regexp.MustCompile(`\b(?:Mr\.|Mrs\.|Ms\.|Dr\.|Governor|Chairman|Minister|CEO|CFO)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`)

// Extractor is a rule-based financial entity extractor.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor { return &Extractor{} }

// Extract finds all financial entities in text. Absence of entities is not an
// error: the result is simply empty.
func (e *Extractor) Extract(_ context.Context, text string) ([]domain.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	lower := strings.ToLower(text)

	var entities []domain.Entity
	seen := make(map[string]bool)
	add := func(typ domain.EntityType, value string, conf float64) {
		key := string(typ) + "|" + value
		if seen[key] {
			return
		}
		seen[key] = true
		entities = append(entities, domain.Entity{Type: typ, Value: value, Confidence: conf})
	}

	// Regulators before companies: "Reserve Bank of India" must not match as
	// a bank name.
	matched := matchAliases(lower, regulatorAliases)
	for _, v := range matched {
		add(domain.EntityRegulator, v, aliasConfidence)
	}
	for _, v := range matchAliases(lower, companyAliases) {
		add(domain.EntityCompany, v, aliasConfidence)
	}
	for _, v := range matchAliases(lower, sectorKeywords) {
		add(domain.EntitySector, v, keywordConfidence)
	}
	for _, v := range matchAliases(lower, eventKeywords) {
		add(domain.EntityEvent, v, keywordConfidence)
	}
	for _, m := range personRe.FindAllStringSubmatch(text, -1) {
		add(domain.EntityPerson, m[1], personConfidence)
	}

	return entities, nil
}

// matchAliases returns the canonical values whose alias appears as a whole
// word in the lowercased text. Longer aliases win over their substrings so
// "hdfc bank" suppresses the bare "hdfc" alias for the same canonical value.
func matchAliases(lower string, aliases map[string]string) []string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	// Longest first for greedy matching; ties alphabetical for determinism.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	var out []string
	found := make(map[string]bool)
	for _, alias := range keys {
		canonical := aliases[alias]
		if found[canonical] {
			continue
		}
		if containsWord(lower, alias) {
			found[canonical] = true
			out = append(out, canonical)
		}
	}
	return out
}

// containsWord reports whether needle occurs in haystack on word boundaries.
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		beforeOK := start == 0 || !isWordByte(haystack[start-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
