package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the structured reply the model must return. At most one of the
// context-request fields (RequestFiles, WebSearch/WebBrowse, SearchProject)
// is honored per turn; see Loop for precedence.
type Response struct {
	Thought       string    `json:"thought"`
	Plan          string    `json:"plan"`
	Response      string    `json:"response"`
	SelfCritique  string    `json:"self_critique"`
	Confidence    float64   `json:"confidence"`
	RequestFiles  []string  `json:"request_files"`
	WebSearch     string    `json:"web_search"`
	WebBrowse     string    `json:"web_browse"`
	SearchProject string    `json:"search_project"`
	Changes       []Change  `json:"changes"`
	Commands      []Command `json:"commands"`
}

// Command is a shell command the model proposes, with its rationale.
type Command struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

// ParseError reports a model reply that could not be decoded, carrying the
// raw text so mission mode can feed it back for self-correction.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractJSON pulls the first JSON object out of text the model may have
// wrapped in prose. It anchors on the first '{' and scans backwards from the
// end for the closing '}' that yields a valid object; if none parses, it
// falls back to the naive first-'{' to last-'}' slice.
func ExtractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return text
	}
	for i := len(text) - 1; i > start; i-- {
		if text[i] != '}' {
			continue
		}
		candidate := text[start : i+1]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
	}
	if end := strings.LastIndexByte(text, '}'); end > start {
		return text[start : end+1]
	}
	return text[start:]
}

// ParseResponse decodes the model reply, tolerating surrounding prose and
// ```json fences. Unknown fields are ignored.
func ParseResponse(text string) (*Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(ExtractJSON(text)), &resp); err == nil {
		return &resp, nil
	}

	if _, fenced, ok := strings.Cut(text, "```json"); ok {
		inner, _, _ := strings.Cut(fenced, "```")
		if err := json.Unmarshal([]byte(ExtractJSON(strings.TrimSpace(inner))), &resp); err == nil {
			return &resp, nil
		} else {
			return nil, &ParseError{Raw: text, Err: err}
		}
	}
	return nil, &ParseError{Raw: text, Err: fmt.Errorf("response was not valid JSON")}
}

// WantsContext reports whether the response asks for more context instead of
// (or before) delivering changes.
func (r *Response) WantsContext() bool {
	return len(r.RequestFiles) > 0 || r.WebSearch != "" || r.WebBrowse != "" || r.SearchProject != ""
}

// MissionComplete reports whether the plan carries the completion marker,
// case-insensitively.
func (r *Response) MissionComplete() bool {
	return strings.Contains(strings.ToUpper(r.Plan), "MISSION COMPLETE")
}
