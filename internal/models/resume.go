package models

import (
	"encoding/json"
	"errors"
)

// StatusParsedAsText marks an agent reply that was not a JSON object.
const StatusParsedAsText = "parsed_as_text"

// TextFallback wraps an agent reply that could not be parsed as JSON.
type TextFallback struct {
	ParsedText string `json:"parsed_text"`
	Status     string `json:"status"`
}

// StructuredResume is the agent's parse of a resume. Exactly one of Fields
// or Text is set. Fields holds the agent's JSON object as received, so its
// key order survives into the output artifact.
type StructuredResume struct {
	Fields json.RawMessage
	Text   *TextFallback
}

// NewTextResume builds the fallback form for an unparseable reply.
func NewTextResume(combined string) StructuredResume {
	return StructuredResume{Text: &TextFallback{ParsedText: combined, Status: StatusParsedAsText}}
}

// IsStructured reports whether the agent returned a JSON object.
func (r StructuredResume) IsStructured() bool {
	return r.Text == nil && len(r.Fields) > 0
}

func (r StructuredResume) MarshalJSON() ([]byte, error) {
	if r.Text != nil {
		return json.Marshal(r.Text)
	}
	if len(r.Fields) == 0 {
		return nil, errors.New("structured resume is empty")
	}
	return r.Fields, nil
}
