package types

import "time"

// EntrySummary is the compact record of a logged entry kept in context memory
// for trigger linking and rough-patch detection.
type EntrySummary struct {
	Intent      Intent    `json:"intent"`
	Item        string    `json:"item,omitempty"`
	SymptomType string    `json:"symptom_type,omitempty"`
	Severity    int       `json:"severity,omitempty"`
	RowRef      string    `json:"row_ref,omitempty"`
	At          time.Time `json:"at"`
}

// SummaryFromParse builds the summary for a parse that was just logged.
func SummaryFromParse(p ParseResult, rowRef string, at time.Time) EntrySummary {
	sev, _ := p.Slots.Int(SlotSeverity)
	return EntrySummary{
		Intent:      p.Intent,
		Item:        p.Slots.String(SlotItem),
		SymptomType: p.Slots.String(SlotSymptomType),
		Severity:    sev,
		RowRef:      rowRef,
		At:          at,
	}
}

// ValidationError represents a payload that does not satisfy the parse shape.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Message
}
