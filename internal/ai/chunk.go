package ai

// ChunkKind identifies the kind of payload carried by a Chunk.
type ChunkKind string

const (
	// ChunkText indicates a fragment of the model's text output.
	ChunkText ChunkKind = "text"
	// ChunkImage indicates base64-encoded image data with a MIME type.
	ChunkImage ChunkKind = "image"
	// ChunkThinking indicates a fragment of reasoning/thinking output.
	ChunkThinking ChunkKind = "thinking"
	// ChunkMeta carries provider metadata (finish reasons, usage summaries).
	ChunkMeta ChunkKind = "meta"
	// ChunkError signals that the stream terminated abnormally.
	ChunkError ChunkKind = "error"
)

// Chunk is one incremental unit of provider output. Chunks exist only in
// flight: they are forwarded to the client as they arrive and folded into a
// per-kind accumulation for persistence, but never stored individually.
//
// The JSON tags define the client wire format directly: each chunk is emitted
// as one self-delimited, newline-terminated JSON object.
type Chunk struct {
	Kind     ChunkKind `json:"chunkType"`
	Content  string    `json:"content"`
	MIMEType string    `json:"mimeType,omitempty"`
}
