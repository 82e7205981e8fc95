// Package passthrough implements the backend adapter for upstreams that
// already speak the client protocol. The model name is substituted and the
// stream is relayed without re-encoding.
package passthrough

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/domain"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/sse"
)

// Adapter relays Chat Completions requests to a compatible upstream.
type Adapter struct {
	model *registry.ModelConfig
	cfg   config.PassthroughConfig
}

// New creates an adapter for one model configuration.
func New(model *registry.ModelConfig, cfg config.PassthroughConfig) *Adapter {
	return &Adapter{model: model, cfg: cfg}
}

func (a *Adapter) Name() string {
	return "passthrough"
}

// AdaptRequest swaps in the native model name and forwards everything else
// unchanged. Streaming is always forced on: the gateway only speaks SSE.
func (a *Adapter) AdaptRequest(req *openai.ChatCompletionRequest) (*domain.UpstreamCall, error) {
	if a.cfg.APIKey == "" {
		return nil, domain.ErrConfiguration("passthrough backend: api_key is not set")
	}
	if a.model.BaseURL == "" {
		return nil, domain.ErrConfiguration(
			"model %q: no base_url configured for the passthrough backend", a.model.Name)
	}

	upstream := *req
	upstream.Model = a.model.NativeModel
	upstream.Stream = true

	payload, err := json.Marshal(&upstream)
	if err != nil {
		return nil, fmt.Errorf("marshal passthrough request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	url := strings.TrimSuffix(a.model.BaseURL, "/") + "/chat/completions"
	if a.cfg.APIVersion != "" {
		url += "?api-version=" + a.cfg.APIVersion
	}

	return &domain.UpstreamCall{
		Method:  http.MethodPost,
		URL:     url,
		Header:  header,
		Body:    payload,
		Timeout: 60 * time.Second,
	}, nil
}

// AdaptStream relays upstream events byte for byte. The payloads are already
// client-protocol chunks, so decoding them would only add failure modes.
func (a *Adapter) AdaptStream(ctx context.Context, upstream io.Reader, out domain.StreamWriter) error {
	sc := sse.NewScanner(upstream)

	for sc.Next() {
		data := sc.Event().Data
		if sse.IsDone(data) {
			break
		}
		if err := out.WriteEvent(data); err != nil {
			return domain.ErrClientClosed
		}
	}

	if err := sc.Err(); err != nil {
		return domain.StreamFailure(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return domain.ErrClientClosed
	}

	if err := out.WriteDone(); err != nil {
		return domain.ErrClientClosed
	}
	return nil
}
