// Package catalog holds the set of selectable models and the adapter each one
// is served by. Adapter selection is declared per entry rather than derived
// from provider/model string comparisons at request time.
package catalog

import (
	"errors"
	"fmt"
)

// ErrUnknownModel is returned by Resolve for model identifiers that are not
// in the catalog.
var ErrUnknownModel = errors.New("unknown model")

// AdapterKind selects which provider adapter serves a model's requests.
type AdapterKind string

const (
	// AdapterStream is the incremental SSE streaming adapter.
	AdapterStream AdapterKind = "stream"
	// AdapterSingleShotMultimodal is the one-shot generateContent adapter for
	// models that return mixed text+image content without streaming support.
	AdapterSingleShotMultimodal AdapterKind = "single_shot_multimodal"
)

// Model is one selectable catalog entry.
type Model struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Provider    string      `json:"provider"`
	Adapter     AdapterKind `json:"-"`
}

// DefaultModelID is the model used when a request does not name one.
const DefaultModelID = "gemini-2.5-flash-image-preview"

// models is the catalog, in display order.
var models = []Model{
	{
		ID:          "gemini-2.5-flash-lite",
		Name:        "Gemini 2.5 Flash Lite",
		Description: "Cheapest model, best for smarter tasks",
		Provider:    "gemini",
		Adapter:     AdapterStream,
	},
	{
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		Description: "Cheapest model, best for simpler tasks",
		Provider:    "gemini",
		Adapter:     AdapterStream,
	},
	{
		ID:          "gemini-2.5-flash-image-preview",
		Name:        "Gemini 2.5 Flash Image Preview",
		Description: "Cheapest model, best for simpler tasks",
		Provider:    "gemini",
		Adapter:     AdapterSingleShotMultimodal,
	},
}

// Resolve returns the catalog entry for the given model identifier. An empty
// identifier resolves to the default model.
func Resolve(id string) (Model, error) {
	if id == "" {
		id = DefaultModelID
	}
	for _, model := range models {
		if model.ID == id {
			return model, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
}

// Default returns the default catalog entry.
func Default() Model {
	model, err := Resolve(DefaultModelID)
	if err != nil {
		panic(err) // The default is always in the catalog.
	}
	return model
}

// Available lists every catalog entry in display order. The returned slice is
// a copy; callers may modify it freely.
func Available() []Model {
	out := make([]Model, len(models))
	copy(out, models)
	return out
}
