// Package relay drives the streaming pipeline for one chat request: persist
// the user turn, build history, invoke the adapter declared by the model's
// catalog entry, forward each chunk to the client as it arrives, and commit
// the accumulated result exactly once when the stream ends normally.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"chatstream/internal/ai"
	"chatstream/internal/catalog"
	"chatstream/internal/history"
	"chatstream/internal/store"
)

// emptyAttachments is the attachments value for messages created by the core
// flows.
const emptyAttachments = "[]"

// streamFailedMessage is the payload of the terminal error chunk sent when a
// streaming provider fails mid-stream.
const streamFailedMessage = "Stream failed"

// Provider yields chunk streams for the two supported response shapes.
// Pre-stream errors are returned directly; mid-stream errors come through the
// stream's iterator.
type Provider interface {
	Stream(ctx context.Context, systemPrompt string, history []ai.Turn, model string) (*ai.ChunkStream, error)
	GenerateMultimodal(ctx context.Context, lastUserText, model string) (*ai.ChunkStream, error)
}

// Store is the persistence surface the relay needs. All writes are single-row
// inserts/updates; each request appends rather than mutating existing rows,
// so no cross-request locking is required here.
type Store interface {
	CreateMessage(ctx context.Context, chatID, role string, parts map[string]string, attachments string) (store.Message, error)
	ListMessages(ctx context.Context, chatID string) ([]store.Message, error)
	TouchChat(ctx context.Context, chatID string) error
}

// flusher matches http.Flusher without importing net/http here.
type flusher interface {
	Flush()
}

// Relay orchestrates chat streaming requests. All mutable per-request state
// (the accumulator) is request-local; a single Relay serves concurrent
// requests.
type Relay struct {
	store        Store
	provider     Provider
	systemPrompt string
	logger       *slog.Logger
}

// New creates a relay. A nil logger falls back to slog.Default().
func New(messageStore Store, provider Provider, systemPrompt string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		store:        messageStore,
		provider:     provider,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// Stream runs one request end to end, writing newline-delimited JSON chunk
// objects to w as they arrive. Errors returned before the first write surface
// as normal error responses; once chunks have been written, streaming-path
// failures are reported in-band as a terminal error chunk instead.
//
// On success the accumulated parts are persisted as exactly one assistant
// message and the chat's activity timestamp is bumped. On mid-stream failure
// or client disconnect the partial accumulation is discarded.
func (relay *Relay) Stream(ctx context.Context, chatID, userText, modelID string, w io.Writer) error {
	model, err := catalog.Resolve(modelID)
	if err != nil {
		return err
	}

	if _, err := relay.store.CreateMessage(ctx, chatID, string(ai.RoleUser), map[string]string{"text": userText}, emptyAttachments); err != nil {
		return fmt.Errorf("failed to persist user message: %w", err)
	}

	messages, err := relay.store.ListMessages(ctx, chatID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	turns, err := history.Build(messages)
	if err != nil {
		return err
	}

	stream, err := relay.openStream(ctx, model, turns, userText)
	if err != nil {
		return err
	}

	accumulator := NewAccumulator()
	for chunk, streamErr := range stream.Iter() {
		if streamErr != nil {
			if ctx.Err() != nil {
				// Client gone; nothing to report in-band, nothing to commit.
				relay.logger.Info("chat stream cancelled", "chat_id", chatID)
				return ctx.Err()
			}
			relay.logger.Error("chat stream error", "chat_id", chatID, "error", streamErr.Error())
			if writeErr := writeChunk(w, ai.Chunk{Kind: ai.ChunkError, Content: streamFailedMessage}); writeErr != nil {
				relay.logger.Warn("failed to write error chunk", "chat_id", chatID, "error", writeErr.Error())
			}
			return nil
		}

		if err := writeChunk(w, chunk); err != nil {
			// Client write failed mid-stream: stop pulling, skip the commit.
			relay.logger.Info("client write failed, abandoning stream", "chat_id", chatID, "error", err.Error())
			return err
		}
		accumulator.Absorb(chunk)
	}

	if ctx.Err() != nil {
		relay.logger.Info("chat stream cancelled before finalize", "chat_id", chatID)
		return ctx.Err()
	}

	parts := accumulator.Finalize()
	if len(parts) == 0 {
		// Legitimate "nothing to relay" outcome; no assistant message.
		return nil
	}

	if _, err := relay.store.CreateMessage(ctx, chatID, string(ai.RoleAssistant), parts, emptyAttachments); err != nil {
		return fmt.Errorf("failed to persist assistant message: %w", err)
	}
	if err := relay.store.TouchChat(ctx, chatID); err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return nil
}

// openStream invokes the adapter declared by the catalog entry. The
// multimodal adapter receives only the most recent user turn's text — a
// deliberate property of that path, not an omission.
func (relay *Relay) openStream(ctx context.Context, model catalog.Model, turns []ai.Turn, userText string) (*ai.ChunkStream, error) {
	switch model.Adapter {
	case catalog.AdapterStream:
		return relay.provider.Stream(ctx, relay.systemPrompt, turns, model.ID)
	case catalog.AdapterSingleShotMultimodal:
		return relay.provider.GenerateMultimodal(ctx, userText, model.ID)
	default:
		return nil, fmt.Errorf("model %s has no adapter configured", model.ID)
	}
}

// writeChunk encodes one chunk as a self-delimited JSON object on its own
// line and flushes so the client sees it immediately.
func writeChunk(w io.Writer, chunk ai.Chunk) error {
	line, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to encode chunk: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.Write(line); err != nil {
		return err
	}
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return nil
}
