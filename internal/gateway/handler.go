// Package gateway implements the client-facing HTTP endpoints: streaming
// chat completions translated to the configured backend, and the model
// listing.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/modelgate/modelgate/internal/adapter"
	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/domain"
	"github.com/modelgate/modelgate/internal/recording"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/modelgate/modelgate/internal/server"
	"github.com/modelgate/modelgate/internal/sse"
	"github.com/modelgate/modelgate/internal/tokens"
)

// Handler serves the chat completion and model listing endpoints.
type Handler struct {
	registry  *registry.Registry
	upstream  config.UpstreamConfig
	client    *http.Client
	logger    *slog.Logger
	recorder  *recording.Recorder
	estimator *tokens.Estimator

	logCompletions bool
}

// Option customizes a Handler.
type Option func(*Handler)

// WithHTTPClient overrides the upstream HTTP client. Used by tests.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Handler) {
		h.client = client
	}
}

// WithRecorder enables exchange recording.
func WithRecorder(rec *recording.Recorder) Option {
	return func(h *Handler) {
		h.recorder = rec
	}
}

// WithCompletionLogging toggles console logging of reconstructed
// completion text and its estimated token count.
func WithCompletionLogging(enabled bool) Option {
	return func(h *Handler) {
		h.logCompletions = enabled
	}
}

// NewHandler creates the handler. The default upstream client never times
// out the response body: completions stream for as long as the upstream
// keeps sending.
func NewHandler(reg *registry.Registry, upstream config.UpstreamConfig, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		registry:  reg,
		upstream:  upstream,
		logger:    logger,
		estimator: tokens.NewEstimator(),
		client: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 60 * time.Second},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the endpoints. Both bare and /v1-prefixed paths are
// served so clients with either base URL convention work unchanged.
func (h *Handler) Register(r chi.Router) {
	r.Post("/chat/completions", h.handleChatCompletions)
	r.Post("/v1/chat/completions", h.handleChatCompletions)
	r.Get("/models", h.handleListModels)
	r.Get("/v1/models", h.handleListModels)
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"models": h.registry.Len(),
	})
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &openai.APIError{
			Message: "invalid request body: " + err.Error(),
			Type:    "invalid_request_error",
		})
		return
	}

	if req.Model == "" {
		writeError(w, http.StatusBadRequest, &openai.APIError{
			Message: "you must provide a model parameter",
			Type:    "invalid_request_error",
			Param:   "model",
		})
		return
	}

	server.AddLogField(ctx, "model", req.Model)

	model, err := h.registry.Lookup(req.Model)
	if err != nil {
		var notFound *domain.ModelNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusBadRequest, &openai.APIError{
				Message: notFound.Error(),
				Type:    "invalid_request_error",
				Param:   "model",
				Code:    "model_not_found",
			})
			return
		}
		h.writeInternalError(ctx, w, err)
		return
	}

	backend, err := adapter.New(model, h.upstream)
	if err != nil {
		h.writeInternalError(ctx, w, err)
		return
	}
	server.AddLogField(ctx, "backend", backend.Name())

	call, err := backend.AdaptRequest(&req)
	if err != nil {
		var confErr *domain.ConfigurationError
		if errors.As(err, &confErr) {
			h.writeInternalError(ctx, w, confErr)
			return
		}
		writeError(w, http.StatusBadRequest, &openai.APIError{
			Message: err.Error(),
			Type:    "invalid_request_error",
		})
		return
	}

	start := time.Now()

	resp, err := h.doUpstream(ctx, call)
	if err != nil {
		if ctx.Err() != nil {
			// The client went away before the upstream answered.
			return
		}
		server.AddError(ctx, err)
		writeError(w, http.StatusBadGateway, &openai.APIError{
			Message: "upstream request failed: " + err.Error(),
			Type:    "api_error",
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.writeUpstreamError(ctx, w, resp)
		return
	}

	sse.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	writer := sse.NewWriter(w)
	observer := newCompletionObserver()
	writer.Observe(observer.observe)

	streamErr := backend.AdaptStream(ctx, resp.Body, writer)

	requestID := server.GetRequestID(ctx)
	status := "completed"
	switch {
	case errors.Is(streamErr, domain.ErrClientClosed):
		status = "client_closed"
		h.logger.Debug("client closed connection mid-stream",
			slog.String("request_id", requestID),
			slog.String("model", req.Model))
	case streamErr != nil:
		status = "failed"
		server.AddError(ctx, streamErr)
		h.logger.Error("stream translation failed",
			slog.String("request_id", requestID),
			slog.String("model", req.Model),
			slog.String("error", streamErr.Error()))
	}

	if h.logCompletions && status == "completed" {
		h.logCompletion(ctx, model, observer)
	}

	if h.recorder != nil {
		h.recorder.Record(recording.Entry{
			RequestID:      requestID,
			Model:          req.Model,
			Backend:        backend.Name(),
			UpstreamURL:    call.URL,
			RequestHeaders: call.Header,
			RequestBody:    call.Body,
			ResponseBody:   observer.raw(),
			Status:         status,
			DurationNS:     time.Since(start).Nanoseconds(),
		})
	}
}

// doUpstream performs the backend HTTP call. The call timeout bounds the
// wait for response headers only; once streaming starts the body has no
// deadline and is bounded by client cancellation instead.
func (h *Handler) doUpstream(ctx context.Context, call *domain.UpstreamCall) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(reqCtx, call.Method, call.URL, bytes.NewReader(call.Body))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header = call.Header.Clone()

	var timer *time.Timer
	if call.Timeout > 0 {
		timer = time.AfterFunc(call.Timeout, cancel)
	}

	resp, err := h.client.Do(req)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		cancel()
		return nil, err
	}

	// cancel must outlive the body read; tie it to body closure.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// writeUpstreamError normalizes a non-success upstream response into the
// client error envelope. Upstream 401s surface as 400: the client never
// authenticates to the upstream, so its own credentials are not at fault.
func (h *Handler) writeUpstreamError(ctx context.Context, w http.ResponseWriter, resp *http.Response) {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	upstreamErr := &domain.UpstreamError{Status: resp.StatusCode, Body: string(body)}
	server.AddError(ctx, upstreamErr)

	apiErr, parseErr := openai.ParseErrorResponse(body)
	if parseErr != nil || apiErr == nil {
		apiErr = &openai.APIError{
			Message: string(body),
			Type:    "upstream_error",
		}
	}

	writeError(w, upstreamErr.ClientStatus(), apiErr)
}

func (h *Handler) writeInternalError(ctx context.Context, w http.ResponseWriter, err error) {
	server.AddError(ctx, err)
	h.logger.Error("request failed", slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, &openai.APIError{
		Message: err.Error(),
		Type:    "api_error",
	})
}

func writeError(w http.ResponseWriter, status int, apiErr *openai.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(openai.ErrorResponse{Error: apiErr})
}
