// Package provider generates astronomy events with a chat-completion model.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/skai/pkg/query"
)

// ErrInvalidJSON is returned when the model answer is not a JSON document.
var ErrInvalidJSON = errors.New("model returned invalid JSON")

// Generator produces the raw events payload for a query.
type Generator interface {
	Generate(ctx context.Context, q query.Query) (json.RawMessage, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, q query.Query) (json.RawMessage, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, q query.Query) (json.RawMessage, error) {
	return f(ctx, q)
}

// SystemPrompt instructs the model about the expected output.
const SystemPrompt = "Generate astronomy events as JSON. Each event: date, title, description, " +
	"visibility ('naked_eye' or 'telescope'), tips. Include major events: meteor showers, " +
	"moon phases, planets, conjunctions, comets, eclipses, solstices/equinoxes."

// UserPrompt asks for the events of one country and month.
func UserPrompt(q query.Query) string {
	return fmt.Sprintf("List 8-12 notable astronomy events for %s in %s %s. Include: meteor showers, "+
		"key moon phases, comets, planetary visibility, conjunctions, eclipses, seasonal events.",
		q.Country, q.Month, q.Year)
}
