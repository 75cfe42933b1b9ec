package http

import (
	"context"
	"net/http"

	"github.com/glkvm/kvmapi/astrowarp"
	"github.com/glkvm/kvmapi/internal/apiutil"
	"github.com/glkvm/kvmapi/internal/slogctx"
	"github.com/go-chi/chi/v5"
	"libdb.so/hrt"
)

// Handler wraps an existing [astrowarp.Service] and provides the
// /astrowarp HTTP API for it.
type Handler struct {
	router  chi.Router
	service *astrowarp.Service
}

var _ http.Handler = (*Handler)(nil)

// NewHandler creates a new [Handler].
func NewHandler(service *astrowarp.Service) *Handler {
	h := &Handler{
		router:  chi.NewRouter(),
		service: service,
	}

	r := h.router
	r.Use(hrt.Use(apiutil.Opts))

	r.Get("/status", hrt.Wrap(h.handleStatus))
	r.Get("/show", hrt.Wrap(h.handleShow))
	r.Get("/enable", hrt.Wrap(h.handleEnable))
	r.Get("/unbind", hrt.Wrap(h.handleUnbind))

	return h
}

// ServeHTTP implements the [http.Handler] interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// StatusResponse is the response of GET /astrowarp/status. Status is only
// set when Result is "success".
type StatusResponse struct {
	Result  string         `json:"result"`
	Status  map[string]any `json:"status,omitempty"`
	Enabled bool           `json:"enabled"`
}

func (h *Handler) handleStatus(ctx context.Context, _ hrt.None) (*StatusResponse, error) {
	status, err := h.service.Status(ctx)
	if err != nil {
		slogctx.From(ctx).Error(
			"failed to read cloud binding config",
			"err", err)
		return nil, apiutil.Internal(err)
	}

	if !status.Bound() {
		return &StatusResponse{Result: "failed", Enabled: status.Enabled}, nil
	}

	return &StatusResponse{
		Result:  "success",
		Status:  status.Binding,
		Enabled: status.Enabled,
	}, nil
}

// ShowResponse is the response of GET /astrowarp/show. URL is the hardware
// identity joined as "mac,sn,ddns".
type ShowResponse struct {
	URL string `json:"url"`
}

func (h *Handler) handleShow(ctx context.Context, _ hrt.None) (*ShowResponse, error) {
	id, err := h.service.Show(ctx)
	if err != nil {
		slogctx.From(ctx).Warn(
			"failed to read hardware identity",
			"err", err)
		return nil, apiutil.NotFound(err)
	}

	return &ShowResponse{URL: id.String()}, nil
}

// EnableRequest holds the query parameters of GET /astrowarp/enable. Only the
// exact value "true" enables the binding.
type EnableRequest struct {
	Enable string `form:"enable"`
}

// EnableResponse is the response of GET /astrowarp/enable. It is written as
// an empty object.
type EnableResponse struct{}

func (h *Handler) handleEnable(ctx context.Context, req EnableRequest) (*EnableResponse, error) {
	enabled := req.Enable == "true"

	if err := h.service.SetEnabled(ctx, enabled); err != nil {
		slogctx.From(ctx).Error(
			"failed to update cloud binding config",
			"enable", enabled,
			"err", err)
		return nil, apiutil.Internal(err)
	}

	return &EnableResponse{}, nil
}

// UnbindResponse is the response of GET /astrowarp/unbind.
type UnbindResponse struct {
	Result string `json:"result"`
}

func (h *Handler) handleUnbind(ctx context.Context, _ hrt.None) (*UnbindResponse, error) {
	if err := h.service.Unbind(ctx); err != nil {
		slogctx.From(ctx).Error(
			"failed to unbind device",
			"err", err)
		return nil, apiutil.BadGateway(err)
	}

	return &UnbindResponse{Result: "success"}, nil
}
