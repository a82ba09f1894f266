package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"chatstream/internal/ai"
	"chatstream/internal/utils"

	"github.com/google/uuid"
)

// GenerateMultimodal issues one synchronous generateContent call for models
// that cannot stream but can return mixed text+image content, and presents
// the parsed response as a chunk stream.
//
// The request context is deliberately just the most recent user turn, not the
// full history — the multimodal model is stateless per exchange.
//
// The call either fails outright (wrapping ErrProviderUnavailable, zero
// chunks) or succeeds with zero or more chunks; an empty
// candidates[0].content.parts is a legitimate "nothing to relay" outcome, not
// an error. Inline image data is decoded and written through the configured
// FileWriter as a side effect; the image chunk still carries the raw base64
// so the client can render immediately without a separate fetch.
func (client *Client) GenerateMultimodal(ctx context.Context, lastUserText, model string) (*ai.ChunkStream, error) {
	apiKey := client.resolveAPIKey()
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", client.baseURL, model)
	request := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: lastUserText}},
		}},
	}

	_, response, err := utils.DoPostSync[generateContentResponse](
		ctx,
		client.httpClient,
		url,
		request,
		utils.HeaderOption{Key: "x-goog-api-key", Value: apiKey},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	chunks, err := client.responseToChunks(response)
	if err != nil {
		return nil, err
	}
	return ai.NewSliceStream(chunks), nil
}

// responseToChunks walks candidates[0].content.parts in array order. Text
// parts become text chunks; inlineData parts are decoded, persisted, and
// become image chunks.
func (client *Client) responseToChunks(response *generateContentResponse) ([]ai.Chunk, error) {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return nil, nil
	}

	var chunks []ai.Chunk
	for _, responsePart := range response.Candidates[0].Content.Parts {
		switch {
		case responsePart.Text != "":
			chunks = append(chunks, ai.Chunk{Kind: ai.ChunkText, Content: responsePart.Text})

		case responsePart.InlineData != nil:
			mimeType := responsePart.InlineData.MimeType
			if mimeType == "" {
				mimeType = "image/png"
			}

			decoded, err := base64.StdEncoding.DecodeString(responsePart.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to decode inline image data: %w", err)
			}

			if client.files != nil {
				name := fmt.Sprintf("gemini_image_%s.%s", uuid.NewString(), extensionFromMIME(mimeType))
				if err := client.files.Write(name, decoded); err != nil {
					return nil, fmt.Errorf("failed to persist inline image: %w", err)
				}
			}

			chunks = append(chunks, ai.Chunk{
				Kind:     ai.ChunkImage,
				Content:  responsePart.InlineData.Data,
				MIMEType: mimeType,
			})
		}
	}
	return chunks, nil
}

// extensionFromMIME derives a file extension from a MIME type such as
// "image/png", defaulting to png when the type is unparseable.
func extensionFromMIME(mimeType string) string {
	_, subtype, found := strings.Cut(mimeType, "/")
	if !found || subtype == "" {
		return "png"
	}
	return subtype
}
