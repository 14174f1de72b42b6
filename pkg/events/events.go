// Package events interprets the opaque events payload at the presentation
// boundary. The cache and dispatch layers never look inside it.
package events

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidPayload is returned for payloads that are not JSON at all.
var ErrInvalidPayload = errors.New("events payload is not valid JSON")

// Visibility values emitted by the model.
const (
	VisibilityNakedEye  = "naked_eye"
	VisibilityTelescope = "telescope"
)

// Kind tells which payload shape was received.
type Kind int

const (
	// KindUnknown is valid JSON of any other shape. It carries no events.
	KindUnknown Kind = iota
	// KindList is a bare array of events.
	KindList
	// KindEnvelope is an object with an "events" array.
	KindEnvelope
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindEnvelope:
		return "envelope"
	default:
		return "unknown"
	}
}

// Event is one astronomy event.
type Event struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
	Tips        string `json:"tips"`
}

// NakedEye reports whether the event needs no optical aid.
func (e Event) NakedEye() bool {
	return e.Visibility == VisibilityNakedEye
}

// Payload is the decoded tagged union.
type Payload struct {
	Kind   Kind
	Events []Event
}

// Decode resolves the payload shape. Non-object array elements are skipped
// and missing fields are left empty.
func Decode(raw json.RawMessage) (Payload, error) {
	if !gjson.ValidBytes(raw) {
		return Payload{}, ErrInvalidPayload
	}

	doc := gjson.ParseBytes(raw)
	switch {
	case doc.IsArray():
		return Payload{Kind: KindList, Events: collect(doc)}, nil
	case doc.IsObject():
		if list := doc.Get("events"); list.IsArray() {
			return Payload{Kind: KindEnvelope, Events: collect(list)}, nil
		}
	}
	return Payload{Kind: KindUnknown}, nil
}

func collect(list gjson.Result) []Event {
	events := make([]Event, 0, len(list.Array()))
	list.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			events = append(events, Event{
				Date:        item.Get("date").String(),
				Title:       item.Get("title").String(),
				Description: item.Get("description").String(),
				Visibility:  item.Get("visibility").String(),
				Tips:        item.Get("tips").String(),
			})
		}
		return true
	})
	return events
}
