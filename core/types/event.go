package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute value for key, or "" when the event carries none.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
