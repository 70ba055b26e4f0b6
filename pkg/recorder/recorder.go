// Package recorder implements the Scoped Recorders (C7): three equivalent
// surfaces over the Event Builder that guarantee an event is appended
// exactly once on every exit path, including panics.
package recorder

import (
	"fmt"

	"github.com/facto-ai/facto/pkg/event"
)

// Sink receives a built event, typically a batcher's Append.
type Sink func(event.FactoEvent) error

// Recorder binds one Builder (one session's agent_id, signing key, and
// chain) to a Sink.
type Recorder struct {
	builder *event.Builder
	sink    Sink
}

// New constructs a Recorder.
func New(builder *event.Builder, sink Sink) *Recorder {
	return &Recorder{builder: builder, sink: sink}
}

// Record is the explicit surface: build and hand off synchronously,
// returning the new event's facto_id.
func (r *Recorder) Record(actionType string, input, output map[string]interface{}, meta *event.ExecutionMeta, status event.Status) (string, error) {
	ev, err := r.builder.Build(event.Input{
		ActionType:    actionType,
		InputData:     input,
		OutputData:    output,
		ExecutionMeta: meta,
		Status:        status,
	})
	if err != nil {
		return "", err
	}
	if err := r.sink(*ev); err != nil {
		return "", err
	}
	return ev.FactoID, nil
}

// Scope is the mutable handle passed into a Scoped block: the caller
// assigns Output and Meta before returning.
type Scope struct {
	Output map[string]interface{}
	Meta   *event.ExecutionMeta
}

// Scoped is the scoped-block surface. fn receives a handle whose Output
// and Meta fields it may set; on normal return the event is built with
// status=success, on error or panic with status=failure and the failure
// description captured in output_data["error"]. The original error (or
// panic) is always re-surfaced to the caller after the event is recorded.
func (r *Recorder) Scoped(actionType string, input map[string]interface{}, fn func(*Scope) error) (err error) {
	s := &Scope{Output: map[string]interface{}{}}

	var panicVal interface{}
	func() {
		defer func() {
			if p := recover(); p != nil {
				panicVal = p
			}
		}()
		err = fn(s)
	}()

	status := event.StatusSuccess
	switch {
	case panicVal != nil:
		status = event.StatusFailure
		s.Output["error"] = fmt.Sprintf("panic: %v", panicVal)
	case err != nil:
		status = event.StatusFailure
		s.Output["error"] = err.Error()
	}

	if _, buildErr := r.Record(actionType, input, s.Output, s.Meta, status); buildErr != nil && err == nil && panicVal == nil {
		err = buildErr
	}

	if panicVal != nil {
		panic(panicVal)
	}
	return err
}

// WrappedFunc is a callable captured by Wrap: it receives named arguments
// and returns a named result.
type WrappedFunc func(args map[string]interface{}) (map[string]interface{}, error)

// Wrap is the wrapped-callable surface: it returns a function with fn's
// signature that, on every invocation, records the call's arguments as
// input_data, the return value as output_data (or the failure description
// as output_data["error"] on error or panic), exactly as Scoped.
func (r *Recorder) Wrap(actionType string, meta *event.ExecutionMeta, fn WrappedFunc) WrappedFunc {
	return func(args map[string]interface{}) (result map[string]interface{}, callErr error) {
		var panicVal interface{}
		func() {
			defer func() {
				if p := recover(); p != nil {
					panicVal = p
				}
			}()
			result, callErr = fn(args)
		}()

		status := event.StatusSuccess
		output := result
		switch {
		case panicVal != nil:
			status = event.StatusFailure
			output = map[string]interface{}{"error": fmt.Sprintf("panic: %v", panicVal)}
		case callErr != nil:
			status = event.StatusFailure
			output = map[string]interface{}{"error": callErr.Error()}
		}

		if _, buildErr := r.Record(actionType, args, output, meta, status); buildErr != nil && callErr == nil && panicVal == nil {
			callErr = buildErr
		}

		if panicVal != nil {
			panic(panicVal)
		}
		return result, callErr
	}
}
