package retrieval

import (
	"regexp"
	"strings"
)

// QueryType represents the type of a search query. The planner uses the
// classification as a pre-pass: a relationship-flavored hybrid query
// narrows the autoseed traversal to the code-graph edge kinds.
type QueryType string

const (
	QueryTypeSymbol       QueryType = "symbol"
	QueryTypeConcept      QueryType = "concept"
	QueryTypeRelationship QueryType = "relationship"
	QueryTypeFlow         QueryType = "flow"
	QueryTypePattern      QueryType = "pattern"
)

// Classifier determines the type of a search query.
type Classifier struct {
	quotedTermRe      *regexp.Regexp
	identifierRe      *regexp.Regexp
	relationshipWords []string
	flowWords         []string
	patternWords      []string
	patternRegexes    []*regexp.Regexp
}

// NewClassifier creates a new query classifier.
func NewClassifier() *Classifier {
	c := &Classifier{
		quotedTermRe: regexp.MustCompile(`"[^"]+"` + "|`[^`]+`"),
		identifierRe: regexp.MustCompile(
			`\b(get|set|is|has|find|handle|create|delete|update|validate|check|process)[A-Z][a-zA-Z]*\b|` + // camelCase methods
				`\b[a-z]+(_[a-z]+)+\b|` + // snake_case
				`\b[A-Z][a-z]+([A-Z][a-z]+)+\b`), // PascalCase
		relationshipWords: []string{
			"calls", "call", "calling",
			"uses", "use", "using",
			"imports", "import", "importing",
			"depends", "dependency", "dependencies",
			"references", "reference", "referencing",
			"invokes", "invoke", "invoking",
			"implements", "implement", "implementing",
			"extends", "extend", "extending",
		},
		flowWords: []string{
			"flow", "flows",
			"path from", "path to",
			"get to", "gets to",
			"route", "routing",
			"pipeline",
			"chain",
		},
		patternWords: []string{
			"pattern", "patterns",
			"typical", "typically",
			"standard", "convention",
			"structure of",
			"example of",
		},
	}

	c.patternRegexes = []*regexp.Regexp{
		regexp.MustCompile(`how do .* work`),
		regexp.MustCompile(`how does .* work`),
	}

	return c
}

// Classify determines the query type.
func (c *Classifier) Classify(query string) QueryType {
	lower := strings.ToLower(query)

	// Quoted terms are explicit symbol lookups - highest priority
	if c.quotedTermRe.MatchString(query) {
		return QueryTypeSymbol
	}

	// Pattern regexes come before relationship words
	for _, re := range c.patternRegexes {
		if re.MatchString(lower) {
			return QueryTypePattern
		}
	}
	for _, word := range c.patternWords {
		if strings.Contains(lower, word) {
			return QueryTypePattern
		}
	}

	for _, word := range c.relationshipWords {
		if containsWord(lower, word) {
			return QueryTypeRelationship
		}
	}

	for _, word := range c.flowWords {
		if strings.Contains(lower, word) {
			return QueryTypeFlow
		}
	}

	// Identifier patterns (camelCase, snake_case, PascalCase) only if no
	// other type matched
	if c.identifierRe.MatchString(query) {
		return QueryTypeSymbol
	}

	return QueryTypeConcept
}

// containsWord checks if the text contains the word as a separate word.
func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	if idx == -1 {
		return false
	}

	if idx > 0 {
		prev := text[idx-1]
		if prev != ' ' && prev != '\t' && prev != '\n' && prev != ',' && prev != '.' {
			return false
		}
	}

	end := idx + len(word)
	if end < len(text) {
		next := text[end]
		if next != ' ' && next != '\t' && next != '\n' && next != ',' && next != '.' && next != 's' {
			return false
		}
	}

	return true
}
