package models

// EventKind classifies a decoded stream payload.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventToken             // carries the continuation token
	EventDelta             // incremental assistant text
	EventDone              // terminal frame
)

func (k EventKind) String() string {
	switch k {
	case EventToken:
		return "token"
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// StreamEvent is the decoded form of one data frame.
type StreamEvent struct {
	Kind       EventKind
	ResponseID string
	Content    string
	// Error is set on a terminal frame that reports a failure after the
	// stream was opened; Content then holds the user-facing text.
	Error bool
}

// Wire frames. Field order and presence match what browsers of the site expect.

type TokenFrame struct {
	ResponseID string `json:"responseId"`
	Done       bool   `json:"done"`
}

type DeltaFrame struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

type DoneFrame struct {
	Content string   `json:"content"`
	Done    bool     `json:"done"`
	Images  []string `json:"images"`
	Error   bool     `json:"error,omitempty"`
}
