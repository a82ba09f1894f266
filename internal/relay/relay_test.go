package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"chatstream/internal/ai"
	"chatstream/internal/store"
)

// fakeStore records message writes in memory.
type fakeStore struct {
	messages   []store.Message
	touched    int
	failCreate bool
}

func (f *fakeStore) CreateMessage(ctx context.Context, chatID, role string, parts map[string]string, attachments string) (store.Message, error) {
	if f.failCreate {
		return store.Message{}, errors.New("store unavailable")
	}
	message := store.Message{
		ID:          chatID + "-" + role,
		ChatID:      chatID,
		Role:        role,
		Parts:       parts,
		Attachments: attachments,
		CreatedAt:   time.Now().Add(time.Duration(len(f.messages)) * time.Millisecond),
	}
	f.messages = append(f.messages, message)
	return message, nil
}

func (f *fakeStore) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	return f.messages, nil
}

func (f *fakeStore) TouchChat(ctx context.Context, chatID string) error {
	f.touched++
	return nil
}

func (f *fakeStore) assistantMessages() []store.Message {
	var out []store.Message
	for _, message := range f.messages {
		if message.Role == "assistant" {
			out = append(out, message)
		}
	}
	return out
}

// fakeProvider yields scripted chunks. streamErr, when set, is yielded after
// the scripted chunks on the streaming path.
type fakeProvider struct {
	streamChunks     []ai.Chunk
	streamErr        error
	multimodalChunks []ai.Chunk
	multimodalErr    error

	gotSystemPrompt string
	gotHistory      []ai.Turn
	gotLastUserText string
	gotModel        string
}

func (f *fakeProvider) Stream(ctx context.Context, systemPrompt string, history []ai.Turn, model string) (*ai.ChunkStream, error) {
	f.gotSystemPrompt = systemPrompt
	f.gotHistory = history
	f.gotModel = model
	chunks := f.streamChunks
	streamErr := f.streamErr
	return ai.NewChunkStream(func(yield func(ai.Chunk, error) bool) {
		for _, chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if streamErr != nil {
			yield(ai.Chunk{}, streamErr)
		}
	}), nil
}

func (f *fakeProvider) GenerateMultimodal(ctx context.Context, lastUserText, model string) (*ai.ChunkStream, error) {
	f.gotLastUserText = lastUserText
	f.gotModel = model
	if f.multimodalErr != nil {
		return nil, f.multimodalErr
	}
	return ai.NewSliceStream(f.multimodalChunks), nil
}

// decodeLines parses each emitted line as an independent JSON object.
func decodeLines(t *testing.T, output string) []ai.Chunk {
	t.Helper()
	var chunks []ai.Chunk
	for _, line := range strings.Split(strings.TrimSuffix(output, "\n"), "\n") {
		if line == "" {
			continue
		}
		var chunk ai.Chunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			t.Fatalf("line is not self-contained JSON: %q: %v", line, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// TestRelay_MultimodalPath verifies that two text parts and one image part
// are forwarded as exactly three chunk lines in order and persisted as one
// assistant message with concatenated parts.
func TestRelay_MultimodalPath(t *testing.T) {
	fakeStore := &fakeStore{}
	provider := &fakeProvider{
		multimodalChunks: []ai.Chunk{
			{Kind: ai.ChunkText, Content: "Here is "},
			{Kind: ai.ChunkText, Content: "a cat."},
			{Kind: ai.ChunkImage, Content: "aWFtYWNhdA==", MIMEType: "image/png"},
		},
	}
	relay := New(fakeStore, provider, "be nice", nil)

	var buf bytes.Buffer
	err := relay.Stream(context.Background(), "chat-1", "draw a cat", "gemini-2.5-flash-image-preview", &buf)
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	chunks := decodeLines(t, buf.String())
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunk lines, got %d: %v", len(chunks), chunks)
	}
	if chunks[0].Kind != ai.ChunkText || chunks[1].Kind != ai.ChunkText || chunks[2].Kind != ai.ChunkImage {
		t.Errorf("unexpected chunk order: %v", chunks)
	}
	if chunks[2].MIMEType != "image/png" {
		t.Errorf("expected image chunk to carry MIME type, got %q", chunks[2].MIMEType)
	}

	if provider.gotLastUserText != "draw a cat" {
		t.Errorf("multimodal adapter should receive only the last user text, got %q", provider.gotLastUserText)
	}

	assistant := fakeStore.assistantMessages()
	if len(assistant) != 1 {
		t.Fatalf("expected exactly one assistant message, got %d", len(assistant))
	}
	if assistant[0].Parts["text"] != "Here is a cat." {
		t.Errorf("expected concatenated text part, got %q", assistant[0].Parts["text"])
	}
	if assistant[0].Parts["image"] != "aWFtYWNhdA==" {
		t.Errorf("expected base64 image part, got %q", assistant[0].Parts["image"])
	}
	if fakeStore.touched != 1 {
		t.Errorf("expected chat touched once, got %d", fakeStore.touched)
	}
}

// TestRelay_StreamingPathMidStreamError verifies that a provider failure
// after one chunk emits that chunk plus one terminal error chunk, and
// persists no assistant message.
func TestRelay_StreamingPathMidStreamError(t *testing.T) {
	fakeStore := &fakeStore{}
	provider := &fakeProvider{
		streamChunks: []ai.Chunk{{Kind: ai.ChunkText, Content: "partial"}},
		streamErr:    errors.New("connection reset"),
	}
	relay := New(fakeStore, provider, "be nice", nil)

	var buf bytes.Buffer
	err := relay.Stream(context.Background(), "chat-1", "hello", "gemini-2.5-flash", &buf)
	if err != nil {
		t.Fatalf("mid-stream failure should end the request without error, got: %v", err)
	}

	chunks := decodeLines(t, buf.String())
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunk lines, got %d: %v", len(chunks), chunks)
	}
	if chunks[0].Kind != ai.ChunkText || chunks[0].Content != "partial" {
		t.Errorf("unexpected first chunk: %+v", chunks[0])
	}
	if chunks[1].Kind != ai.ChunkError || chunks[1].Content != "Stream failed" {
		t.Errorf("expected terminal error chunk, got %+v", chunks[1])
	}

	if len(fakeStore.assistantMessages()) != 0 {
		t.Error("partial accumulation must not be persisted")
	}
	if fakeStore.touched != 0 {
		t.Error("chat must not be touched on failure")
	}
}

// TestRelay_EmptyStreamPersistsNothing verifies the legitimate
// nothing-to-relay outcome: zero chunks, no assistant message, no error.
func TestRelay_EmptyStreamPersistsNothing(t *testing.T) {
	fakeStore := &fakeStore{}
	provider := &fakeProvider{}
	relay := New(fakeStore, provider, "be nice", nil)

	var buf bytes.Buffer
	err := relay.Stream(context.Background(), "chat-1", "hello", "gemini-2.5-flash-image-preview", &buf)
	if err != nil {
		t.Fatalf("empty response must not be an error, got: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
	if len(fakeStore.assistantMessages()) != 0 {
		t.Error("expected no assistant message")
	}
}

// TestRelay_StreamingPathUsesFullHistory verifies that the streaming adapter
// receives the system prompt and every prior turn, including the user
// message persisted for this request.
func TestRelay_StreamingPathUsesFullHistory(t *testing.T) {
	fakeStore := &fakeStore{}
	if _, err := fakeStore.CreateMessage(context.Background(), "chat-1", "user", map[string]string{"text": "hi"}, "[]"); err != nil {
		t.Fatal(err)
	}
	if _, err := fakeStore.CreateMessage(context.Background(), "chat-1", "assistant", map[string]string{"text": "hello"}, "[]"); err != nil {
		t.Fatal(err)
	}

	provider := &fakeProvider{
		streamChunks: []ai.Chunk{{Kind: ai.ChunkText, Content: "sure"}},
	}
	relay := New(fakeStore, provider, "system prompt here", nil)

	var buf bytes.Buffer
	if err := relay.Stream(context.Background(), "chat-1", "one more thing", "gemini-2.5-flash-lite", &buf); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	if provider.gotSystemPrompt != "system prompt here" {
		t.Errorf("expected system prompt to be forwarded, got %q", provider.gotSystemPrompt)
	}
	if len(provider.gotHistory) != 3 {
		t.Fatalf("expected 3 turns of history, got %d", len(provider.gotHistory))
	}
	last := provider.gotHistory[2]
	if last.Role != ai.RoleUser || last.Content != "one more thing" {
		t.Errorf("expected the new user turn last, got %+v", last)
	}
	if provider.gotModel != "gemini-2.5-flash-lite" {
		t.Errorf("expected requested model, got %q", provider.gotModel)
	}
}

// cancellingProvider yields one chunk, cancels the request context, then
// yields the context error, the way an adapter surfaces a client disconnect.
type cancellingProvider struct {
	cancel context.CancelFunc
}

func (p *cancellingProvider) Stream(ctx context.Context, systemPrompt string, history []ai.Turn, model string) (*ai.ChunkStream, error) {
	return ai.NewChunkStream(func(yield func(ai.Chunk, error) bool) {
		if !yield(ai.Chunk{Kind: ai.ChunkText, Content: "partial"}, nil) {
			return
		}
		p.cancel()
		yield(ai.Chunk{}, ctx.Err())
	}), nil
}

func (p *cancellingProvider) GenerateMultimodal(ctx context.Context, lastUserText, model string) (*ai.ChunkStream, error) {
	return ai.NewSliceStream(nil), nil
}

// TestRelay_ClientDisconnectDiscardsPartial verifies that a context cancelled
// mid-stream stops the relay without an error chunk, persists no assistant
// message, and leaves the chat untouched.
func TestRelay_ClientDisconnectDiscardsPartial(t *testing.T) {
	fakeStore := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay := New(fakeStore, &cancellingProvider{cancel: cancel}, "", nil)

	var buf bytes.Buffer
	err := relay.Stream(ctx, "chat-1", "hello", "gemini-2.5-flash", &buf)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}

	chunks := decodeLines(t, buf.String())
	if len(chunks) != 1 || chunks[0].Kind != ai.ChunkText || chunks[0].Content != "partial" {
		t.Fatalf("expected only the pre-cancel chunk on the wire, got %v", chunks)
	}
	for _, chunk := range chunks {
		if chunk.Kind == ai.ChunkError {
			t.Error("a disconnected client must not receive an error chunk")
		}
	}

	if len(fakeStore.assistantMessages()) != 0 {
		t.Error("partial accumulation must not be persisted on disconnect")
	}
	if fakeStore.touched != 0 {
		t.Error("chat must not be touched on disconnect")
	}
}

// TestRelay_UnknownModelRejectedBeforePersist verifies that an unresolvable
// model fails the request before the user message is written.
func TestRelay_UnknownModelRejectedBeforePersist(t *testing.T) {
	fakeStore := &fakeStore{}
	relay := New(fakeStore, &fakeProvider{}, "", nil)

	var buf bytes.Buffer
	err := relay.Stream(context.Background(), "chat-1", "hello", "gpt-17", &buf)
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	if len(fakeStore.messages) != 0 {
		t.Error("no message should be persisted for a rejected request")
	}
	if buf.Len() != 0 {
		t.Error("no chunks should be emitted for a rejected request")
	}
}

// TestRelay_SingleShotFailurePropagates verifies that a provider failure on
// the single-shot path surfaces as a hard request failure with no output.
func TestRelay_SingleShotFailurePropagates(t *testing.T) {
	fakeStore := &fakeStore{}
	provider := &fakeProvider{multimodalErr: errors.New("non-2xx status 500")}
	relay := New(fakeStore, provider, "", nil)

	var buf bytes.Buffer
	err := relay.Stream(context.Background(), "chat-1", "hello", "gemini-2.5-flash-image-preview", &buf)
	if err == nil {
		t.Fatal("expected error")
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output before failure, got %q", buf.String())
	}
	if len(fakeStore.assistantMessages()) != 0 {
		t.Error("expected no assistant message")
	}
}
