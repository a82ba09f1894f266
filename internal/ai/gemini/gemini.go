// Package gemini adapts Google's Gemini API to the uniform chunk stream
// contract. It implements exactly two response shapes: the SSE streaming
// endpoint for text models (Stream) and the synchronous generateContent
// endpoint for the multimodal image model (GenerateMultimodal).
package gemini

import (
	"errors"
	"net/http"
	"os"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not set")

// ErrProviderUnavailable wraps transport failures and non-2xx responses from
// the synchronous generateContent call. No chunks are ever produced when it
// is returned.
var ErrProviderUnavailable = errors.New("failed to communicate with Gemini API")

// FileWriter persists decoded binary assets produced by the multimodal model.
// Implementations must treat name as a bare file name.
type FileWriter interface {
	Write(name string, data []byte) error
}

// Client calls the Gemini API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	files      FileWriter
}

// New creates a Gemini client with default values from the environment.
// Environment variables:
//   - GEMINI_API_KEY: API key for authentication, read at call time
//   - GEMINI_API_BASE_URL: Base URL for API (optional, defaults to Google's API)
func New() *Client {
	baseURL := os.Getenv("GEMINI_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// WithAPIKey pins an explicit API key, overriding the call-time environment
// read.
func (client *Client) WithAPIKey(apiKey string) *Client {
	client.apiKey = apiKey
	return client
}

// resolveAPIKey returns the pinned key if one was set, otherwise the current
// value of GEMINI_API_KEY. Reading at call time means a key rotated in the
// environment takes effect without a restart. The key goes into the request
// header only; it is never logged.
func (client *Client) resolveAPIKey() string {
	if client.apiKey != "" {
		return client.apiKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

// WithBaseURL sets the base URL for the API.
func (client *Client) WithBaseURL(baseURL string) *Client {
	client.baseURL = baseURL
	return client
}

// WithHTTPClient sets a custom HTTP client.
func (client *Client) WithHTTPClient(httpClient *http.Client) *Client {
	client.httpClient = httpClient
	return client
}

// WithFileWriter sets the destination for decoded multimodal assets. Without
// one, GenerateMultimodal still yields image chunks but persists no files.
func (client *Client) WithFileWriter(files FileWriter) *Client {
	client.files = files
	return client
}
