package domain

// QueryRequest is the inbound query payload.
type QueryRequest struct {
	SessionID     string `json:"session_id,omitempty"`
	Query         string `json:"query"`
	PersonalityID string `json:"personality_id,omitempty"`
	MaxResults    int    `json:"max_results,omitempty"`
	Format        string `json:"format,omitempty"` // "", "markdown", "html"
}

// QueryResponse is the outbound query payload.
type QueryResponse struct {
	SessionID string   `json:"session_id"`
	Response  string   `json:"response"`
	Sources   []Source `json:"sources,omitempty"`
}

// AddPersonalityRequest carries a new personality definition to persist.
type AddPersonalityRequest struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Extension string `json:"extension,omitempty"` // ".json" or ".txt"; default ".json"
}
