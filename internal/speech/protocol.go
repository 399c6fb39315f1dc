package speech

// Command is sent to the speech daemon, one JSON object per line.
type Command struct {
	Cmd    string   `json:"cmd"`
	Locale string   `json:"locale,omitempty"`
	Events []string `json:"events,omitempty"`
}

// Response is the daemon's reply to a Command.
type Response struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"sessionId,omitempty"`
	Recording *bool  `json:"recording,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Event is streamed to subscribed connections.
type Event struct {
	Event     string `json:"event"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
	Recording *bool  `json:"recording,omitempty"`
}

// Event names.
const (
	EventPartial = "partial"
	EventSegment = "segment"
	EventStatus  = "status"
	EventError   = "error"
)
