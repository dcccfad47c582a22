package parser

import "strings"

// promptAAnchor is the idle-prompt anchor this parser watches for: a bare
// submit cursor on its own trailing line, the pattern emitted by simple
// line-oriented REPLs once they've returned to idle.
const promptAAnchor = "\n> "

// promptA recognizes a trailing "> " cursor as idle. It requires a
// two-key submit sequence (Ctrl-J then a bare carriage return) rather
// than a single newline.
type promptA struct{}

// PromptA returns the prompt-based parser for REPLs that idle on a bare
// "> " cursor.
func PromptA() Parser { return promptA{} }

func (promptA) Kind() string { return "prompt-a" }

func (promptA) IsReady(buffer string) bool {
	trimmed := strings.TrimRight(buffer, " \t")
	return strings.HasSuffix(trimmed, promptAAnchor) || trimmed == ">" || strings.HasSuffix(trimmed, "\n>")
}

func (promptA) Parse(buffer string) ParsedResponse {
	content := strings.TrimSuffix(strings.TrimRight(buffer, " \t"), promptAAnchor)
	content = strings.TrimSuffix(content, "\n>")
	return ParsedResponse{
		Sections:   []Section{{Content: content}},
		IsComplete: true,
		IsReady:    true,
	}
}

// SubmitSequence returns the two-key submit chord this CLI expects instead
// of a bare newline: Ctrl-J (line feed) followed by carriage return.
func (promptA) SubmitSequence() []byte { return []byte{'\x0a', '\r'} }

// promptBAnchors are the idle-prompt box-drawing anchors this parser
// watches for, matching CLIs that render a bordered input box when idle.
var promptBAnchors = []string{"\n╭─", "\n┌─"}

// promptBThinking is the substring emitted while the target CLI is still
// generating a response; its presence means "not ready" even if an idle
// anchor also appears earlier in the buffer (e.g. from a prior turn).
const promptBThinking = "· Thinking"

// promptB recognizes a bordered prompt box as idle, but treats the
// "thinking" indicator as overriding: not ready until thinking clears.
type promptB struct{}

// PromptB returns the prompt-based parser for CLIs that render a bordered
// input box and a "thinking" busy indicator.
func PromptB() Parser { return promptB{} }

func (promptB) Kind() string { return "prompt-b" }

func (promptB) IsReady(buffer string) bool {
	if idx := strings.LastIndex(buffer, promptBThinking); idx >= 0 {
		// Not ready if thinking appears after the last idle anchor.
		lastAnchor := -1
		for _, a := range promptBAnchors {
			if i := strings.LastIndex(buffer, a); i > lastAnchor {
				lastAnchor = i
			}
		}
		if idx > lastAnchor {
			return false
		}
	}
	for _, a := range promptBAnchors {
		if strings.Contains(buffer, a) {
			return true
		}
	}
	return false
}

func (promptB) Parse(buffer string) ParsedResponse {
	end := len(buffer)
	for _, a := range promptBAnchors {
		if i := strings.LastIndex(buffer, a); i >= 0 && i < end {
			end = i
		}
	}
	content := buffer
	if end < len(buffer) {
		content = buffer[:end]
	}
	return ParsedResponse{
		Sections:   []Section{{Content: strings.TrimRight(content, "\n")}},
		IsComplete: true,
		IsReady:    true,
	}
}

func (promptB) SubmitSequence() []byte { return []byte("\n") }
