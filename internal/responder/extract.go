package responder

import (
	"encoding/json"
	"strings"

	"github.com/leadflow-server/leadflow-server/internal/models"
)

// Lead marker delimiters. The model is instructed to embed at most one
// marker in its reply; the marker is stripped before the reply is shown.
const (
	leadMarkerStart = "[[LEAD]]"
	leadMarkerEnd   = "[[/LEAD]]"
)

// ExtractionOutcome classifies the result of scanning a reply for a lead
// marker. Malformed markers are kept observable instead of being coerced
// to "no lead".
type ExtractionOutcome int

const (
	NoLead ExtractionOutcome = iota
	ParsedLead
	MalformedLead
)

// LeadPayload is the structured payload embedded in a lead marker
type LeadPayload struct {
	Type          models.LeadType `json:"type"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Details       map[string]any  `json:"details"`
}

// Extraction is the outcome of one extraction pass
type Extraction struct {
	Outcome ExtractionOutcome
	Payload *LeadPayload
	// Raw holds the marker body when it could not be parsed.
	Raw string
}

// ExtractLead scans raw model output for a lead marker. It returns the
// user-visible reply with the marker removed, and the extraction outcome.
// Extraction is pure: the same input always yields the same result.
func ExtractLead(raw string) (string, Extraction) {
	start := strings.Index(raw, leadMarkerStart)
	if start < 0 {
		return strings.TrimSpace(raw), Extraction{Outcome: NoLead}
	}

	rest := raw[start+len(leadMarkerStart):]
	end := strings.Index(rest, leadMarkerEnd)
	if end < 0 {
		// Unterminated marker: strip everything from the opening delimiter
		// so it never leaks to the user.
		clean := strings.TrimSpace(raw[:start])
		return clean, Extraction{Outcome: MalformedLead, Raw: strings.TrimSpace(rest)}
	}

	body := strings.TrimSpace(rest[:end])
	clean := strings.TrimSpace(raw[:start] + rest[end+len(leadMarkerEnd):])

	var payload LeadPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return clean, Extraction{Outcome: MalformedLead, Raw: body}
	}

	if !models.ValidLeadType(payload.Type) {
		return clean, Extraction{Outcome: MalformedLead, Raw: body}
	}

	return clean, Extraction{Outcome: ParsedLead, Payload: &payload}
}
