package domain

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/modelgate/modelgate/internal/api/openai"
)

// UpstreamCall describes one HTTP call to a backend. It is produced once per
// request by an adapter and never reused.
type UpstreamCall struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// StreamWriter emits client-protocol frames. WriteEvent writes one
// `data: <payload>` frame; WriteDone writes the terminal sentinel.
type StreamWriter interface {
	WriteEvent(data []byte) error
	WriteDone() error
}

// BackendAdapter converts an inbound Chat Completions request into an
// upstream call and translates the upstream byte stream back into client
// chunks. Implementations are stateless; all per-request translation state
// lives inside AdaptStream.
type BackendAdapter interface {
	// Name identifies the backend dialect ("responses", "messages",
	// "passthrough").
	Name() string

	// AdaptRequest builds the upstream call for the inbound request.
	AdaptRequest(req *openai.ChatCompletionRequest) (*UpstreamCall, error)

	// AdaptStream consumes the upstream response body and writes client
	// chunks to out, terminated by the sentinel. It returns ErrClientClosed
	// when the downstream client goes away mid-stream.
	AdaptStream(ctx context.Context, upstream io.Reader, out StreamWriter) error
}
