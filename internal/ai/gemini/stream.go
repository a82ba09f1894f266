package gemini

import (
	"context"
	"fmt"
	"io"
	"strings"

	"chatstream/internal/ai"
	"chatstream/internal/utils"
)

// Stream calls the streamGenerateContent endpoint with alt=sse and yields the
// model's incremental output as chunks. The system prompt and the full
// conversation history are sent as context.
//
// Pre-stream errors (auth, bad request, network) are returned as a normal
// error and no stream exists. Mid-stream errors are yielded through the
// iterator — a transport failure surfaces as an error, not a silent
// end-of-stream.
//
// Gemini SSE events each carry a full generateContentResponse (not a delta).
// To produce content deltas, we track the cumulative text length across
// events and emit only the new portion.
func (client *Client) Stream(ctx context.Context, systemPrompt string, history []ai.Turn, model string) (*ai.ChunkStream, error) {
	apiKey := client.resolveAPIKey()
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	streamURL := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", client.baseURL, model)
	request := buildRequest(systemPrompt, history)

	httpResponse, err := utils.DoPostStream(
		ctx,
		client.httpClient,
		streamURL,
		request,
		utils.HeaderOption{Key: "x-goog-api-key", Value: apiKey},
	)
	if err != nil {
		return nil, err
	}

	sseScanner := utils.NewSSEScanner(httpResponse.Body)

	iteratorFunc := func(yield func(ai.Chunk, error) bool) {
		// Ensure the response body is closed when the iterator is done
		defer utils.CloseWithLog(httpResponse.Body)

		// Track cumulative lengths to compute deltas (Gemini sends full text,
		// not increments)
		previousTextLength := 0
		previousThinkingLength := 0

		for {
			if ctx.Err() != nil {
				yield(ai.Chunk{}, ctx.Err())
				return
			}

			payload, sseErr := sseScanner.Next()
			if sseErr == io.EOF {
				// Stream finished normally
				return
			}
			if sseErr != nil {
				yield(ai.Chunk{}, fmt.Errorf("SSE read error: %w", sseErr))
				return
			}

			response, parseErr := utils.ParseJSON[generateContentResponse](payload)
			if parseErr != nil {
				yield(ai.Chunk{}, fmt.Errorf("failed to parse Gemini streaming event: %w", parseErr))
				return
			}

			chunks := eventToChunks(&response, &previousTextLength, &previousThinkingLength)
			for _, chunk := range chunks {
				if !yield(chunk, nil) {
					return // Caller stopped iterating
				}
			}
		}
	}

	return ai.NewChunkStream(iteratorFunc), nil
}

// buildRequest converts the system prompt and turn history into the Gemini
// request shape. Role mapping: user -> user, assistant -> model.
func buildRequest(systemPrompt string, history []ai.Turn) generateContentRequest {
	request := generateContentRequest{}

	if systemPrompt != "" {
		request.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: systemPrompt}},
		}
	}

	for _, turn := range history {
		role := "user"
		if turn.Role == ai.RoleAssistant {
			role = "model"
		}
		request.Contents = append(request.Contents, content{
			Role:  role,
			Parts: []part{{Text: turn.Content}},
		})
	}

	return request
}

// eventToChunks converts one streaming generateContentResponse into chunks,
// computing text and thinking deltas against the previously seen cumulative
// lengths. A final event carrying a finish reason becomes a meta chunk.
func eventToChunks(response *generateContentResponse, previousTextLength, previousThinkingLength *int) []ai.Chunk {
	var chunks []ai.Chunk

	if len(response.Candidates) == 0 {
		return chunks
	}

	candidate := response.Candidates[0]
	if candidate.Content == nil {
		if candidate.FinishReason != "" {
			chunks = append(chunks, ai.Chunk{Kind: ai.ChunkMeta, Content: strings.ToLower(candidate.FinishReason)})
		}
		return chunks
	}

	var textParts []string
	var thinkingParts []string
	for _, part := range candidate.Content.Parts {
		if part.Text == "" {
			continue
		}
		if part.Thought {
			thinkingParts = append(thinkingParts, part.Text)
		} else {
			textParts = append(textParts, part.Text)
		}
	}

	fullThinking := strings.Join(thinkingParts, "\n")
	if len(fullThinking) > *previousThinkingLength {
		delta := fullThinking[*previousThinkingLength:]
		*previousThinkingLength = len(fullThinking)
		chunks = append(chunks, ai.Chunk{Kind: ai.ChunkThinking, Content: delta})
	}

	fullText := strings.Join(textParts, "\n")
	if len(fullText) > *previousTextLength {
		delta := fullText[*previousTextLength:]
		*previousTextLength = len(fullText)
		chunks = append(chunks, ai.Chunk{Kind: ai.ChunkText, Content: delta})
	}

	if candidate.FinishReason != "" {
		chunks = append(chunks, ai.Chunk{Kind: ai.ChunkMeta, Content: strings.ToLower(candidate.FinishReason)})
	}

	return chunks
}
