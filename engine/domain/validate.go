package domain

import "strings"

// ValidSources enumerates accepted article feeds. Sources with provider
// prefixes like "rss:moneycontrol" are accepted.
var ValidSources = map[string]bool{
	"rss":     true,
	"api":     true,
	"manual":  true,
	"wire":    true,
	"scraper": true,
}

func validSource(src string) bool {
	if ValidSources[src] {
		return true
	}
	for base := range ValidSources {
		if strings.HasPrefix(src, base+":") {
			return true
		}
	}
	return false
}

// ValidateArticle checks an incoming article before ingestion.
func ValidateArticle(a Article) error {
	if strings.TrimSpace(a.Title) == "" {
		return NewValidationError("title", a.Title, ErrInvalidArticle)
	}
	if strings.TrimSpace(a.Content) == "" {
		return NewValidationError("content", "", ErrInvalidArticle)
	}
	if a.Source != "" && !validSource(a.Source) {
		return NewValidationError("source", a.Source, ErrInvalidArticle)
	}
	return nil
}

// ValidateEntity rejects entities with unknown types or out-of-range
// confidence at the pipeline boundary.
func ValidateEntity(e Entity) error {
	if !ValidEntityTypes[e.Type] {
		return NewValidationError("type", string(e.Type), ErrUnknownEntityType)
	}
	if e.Value == "" {
		return NewValidationError("value", "", ErrInvalidArticle)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return NewValidationError("confidence", e.Value, ErrConfidenceRange)
	}
	return nil
}

// ValidateQuery checks a raw query string.
func ValidateQuery(q string) error {
	if len(strings.TrimSpace(q)) < 3 {
		return NewValidationError("query", q, ErrInvalidQuery)
	}
	return nil
}
