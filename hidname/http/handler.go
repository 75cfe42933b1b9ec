package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/glkvm/kvmapi/hidname"
	"github.com/glkvm/kvmapi/internal/apiutil"
	"github.com/glkvm/kvmapi/internal/slogctx"
	"github.com/go-chi/chi/v5"
	"libdb.so/hrt"
)

// Handler wraps an existing [hidname.Service] and provides the /hidname HTTP
// API for it.
type Handler struct {
	router  chi.Router
	service *hidname.Service
}

var _ http.Handler = (*Handler)(nil)

// NewHandler creates a new [Handler].
func NewHandler(service *hidname.Service) *Handler {
	h := &Handler{
		router:  chi.NewRouter(),
		service: service,
	}

	r := h.router
	r.Use(hrt.Use(apiutil.Opts))

	r.Get("/", hrt.Wrap(h.handleGet))
	r.Post("/", hrt.Wrap(h.handleSet))

	return h
}

// ServeHTTP implements the [http.Handler] interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleGet(ctx context.Context, _ hrt.None) (hidname.Identity, error) {
	return h.service.Get(), nil
}

// SetRequest holds the query parameters of POST /hidname.
type SetRequest struct {
	VendorID     string `form:"vendor_id"`
	ProductID    string `form:"product_id"`
	Manufacturer string `form:"manufacturer"`
	Product      string `form:"product"`
	Serial       string `form:"serial"`
}

// SetResponse is the response of POST /hidname.
type SetResponse struct {
	Status string `json:"status"`
}

func (h *Handler) handleSet(ctx context.Context, req SetRequest) (*SetResponse, error) {
	logger := slogctx.From(ctx)

	err := h.service.Set(ctx, hidname.Params{
		VendorID:     req.VendorID,
		ProductID:    req.ProductID,
		Manufacturer: req.Manufacturer,
		Product:      req.Product,
		Serial:       req.Serial,
	})
	if err != nil {
		var verr *hidname.ValidationError
		if errors.As(err, &verr) {
			logger.Info(
				"rejected USB identity update",
				"field", verr.Field)
			return nil, apiutil.BadRequest("Invalid "+verr.Field, err)
		}

		logger.Error(
			"failed to save USB identity",
			"err", err)
		return nil, apiutil.Internal(err)
	}

	return &SetResponse{Status: "Reboot started"}, nil
}
