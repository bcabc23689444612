package emit

import "context"

// MultiEmitter fans a single event stream out to several Emitters, e.g. a
// LogEmitter for operational logs, an OTelEmitter for traces, and a
// SubscriberEmitter feeding the streaming API, all from one Engine.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter returns a MultiEmitter that forwards to all of emitters.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

func (m *MultiEmitter) EmitBatch(ctx context.Context, events []Event) error {
	var firstErr error
	for _, e := range m.emitters {
		if err := e.EmitBatch(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiEmitter) Flush(ctx context.Context) error {
	var firstErr error
	for _, e := range m.emitters {
		if err := e.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
