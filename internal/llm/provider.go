package llm

import (
	"context"
)

// Request is what one chat turn asks of the upstream.
type Request struct {
	Instructions       string
	Input              string
	StoreID            string // knowledge store the retrieval tool is scoped to
	PreviousResponseID string // continuation token, empty on the first turn
}

type EventType int

const (
	EventCreated EventType = iota + 1
	EventDelta
	EventCompleted
)

// Event is a normalised upstream stream event.
type Event struct {
	Type       EventType
	ResponseID string // EventCreated
	Delta      string // EventDelta
}

// Stream yields upstream events in emission order. Next returns io.EOF when
// the upstream closed the stream. Close releases the connection and may be
// called at any time.
type Stream interface {
	Next() (Event, error)
	Close() error
}

// Provider is a completion backend offering token streaming, retrieval over
// a knowledge store and server side continuation.
type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}
