// Package realtimetest provides an in-memory Emitter for tests.
package realtimetest

import (
	"context"
	"encoding/json"
	"sync"
)

// Emitted is one recorded event with its payload re-encoded as JSON.
type Emitted struct {
	Topic   string
	Type    string
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (e Emitted) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Recorder is a realtime.Emitter that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []Emitted
}

func (r *Recorder) Emit(_ context.Context, topic, eventType string, payload interface{}) {
	raw, _ := json.Marshal(payload)
	r.mu.Lock()
	r.events = append(r.events, Emitted{Topic: topic, Type: eventType, Payload: raw})
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emitted(nil), r.events...)
}

// ByType returns the recorded events of one type, in emission order.
func (r *Recorder) ByType(eventType string) []Emitted {
	var out []Emitted
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// OnTopic returns the recorded events for one topic, in emission order.
func (r *Recorder) OnTopic(topic string) []Emitted {
	var out []Emitted
	for _, e := range r.Events() {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
