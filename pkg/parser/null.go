package parser

// nullParser is always ready and returns the whole buffer as one raw
// section. It is the default when no other parser is selected.
type nullParser struct{}

// Null returns the null parser singleton behavior (stateless, so a fresh
// value is cheap and equivalent).
func Null() Parser {
	return nullParser{}
}

func (nullParser) Kind() string { return "null" }

func (nullParser) IsReady(buffer string) bool { return true }

func (nullParser) Parse(buffer string) ParsedResponse {
	return ParsedResponse{
		Sections:   []Section{{Content: buffer}},
		IsComplete: true,
		IsReady:    true,
	}
}

func (nullParser) SubmitSequence() []byte { return []byte("\n") }
