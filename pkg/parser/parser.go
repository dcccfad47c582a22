// Package parser classifies the tail of a terminal node's output buffer as
// ready, busy, or incomplete, and extracts structured sections once ready.
// Parsers are pure: given the same buffer they always report the same
// readiness and sections.
package parser

// Section is one extracted piece of a parsed response. Most parsers emit a
// single raw section; structured parsers may emit more than one.
type Section struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// ParsedResponse is the result of Parse.
type ParsedResponse struct {
	Sections   []Section `json:"sections"`
	Tokens     int       `json:"tokens"`
	IsComplete bool      `json:"is_complete"`
	IsReady    bool      `json:"is_ready"`
}

// Text concatenates every section's content, the common case for callers
// that don't care about section boundaries.
func (p ParsedResponse) Text() string {
	if len(p.Sections) == 0 {
		return ""
	}
	if len(p.Sections) == 1 {
		return p.Sections[0].Content
	}
	out := ""
	for _, s := range p.Sections {
		out += s.Content
	}
	return out
}

// Parser classifies a text buffer's tail and extracts structured sections.
// Implementations must be stateless and safe for concurrent use.
type Parser interface {
	// Kind identifies this parser for history/trace records.
	Kind() string

	// IsReady reports whether buffer's tail indicates the subprocess has
	// returned to an idle, response-complete state.
	IsReady(buffer string) bool

	// Parse extracts the structured response from buffer. Callers only
	// call Parse once IsReady(buffer) is true; on timeout TerminalNode
	// returns an error without parsing.
	Parse(buffer string) ParsedResponse

	// SubmitSequence returns the raw bytes that must follow written input
	// to submit it to the subprocess (e.g. "\n", or a CLI-specific submit
	// chord).
	SubmitSequence() []byte
}

// Resolve picks a parser in priority order: per-operation override, then
// step-level override, then node default, then the null parser. Any nil
// argument is skipped.
func Resolve(operationOverride, stepOverride, nodeDefault Parser) Parser {
	if operationOverride != nil {
		return operationOverride
	}
	if stepOverride != nil {
		return stepOverride
	}
	if nodeDefault != nil {
		return nodeDefault
	}
	return Null()
}
