// Package adapter selects the backend adapter for a configured model.
package adapter

import (
	"github.com/modelgate/modelgate/internal/adapter/messages"
	"github.com/modelgate/modelgate/internal/adapter/passthrough"
	"github.com/modelgate/modelgate/internal/adapter/responses"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/domain"
	"github.com/modelgate/modelgate/internal/registry"
)

// New returns the adapter matching the model's configured backend kind. The
// request payload plays no part in selection.
func New(model *registry.ModelConfig, upstream config.UpstreamConfig) (domain.BackendAdapter, error) {
	switch model.Kind {
	case registry.KindResponses:
		return responses.New(model, upstream.Responses), nil
	case registry.KindMessages:
		return messages.New(model, upstream.Messages), nil
	case registry.KindPassthrough:
		return passthrough.New(model, upstream.Passthrough), nil
	}
	return nil, domain.ErrConfiguration("model %q: unknown backend kind %q", model.Name, model.Kind)
}
