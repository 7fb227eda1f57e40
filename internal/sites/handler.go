package sites

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/httpx"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

// Handler exposes the site directory over HTTP.
type Handler struct {
	logger    *slog.Logger
	directory *Directory
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, directory *Directory) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, directory: directory}
}

// MountRoutes registers directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listOrganizations)
	r.Get("/{id}/invoice-defaults", h.invoiceDefaults)
}

func (h *Handler) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.directory.Organizations(r.Context())
	if err != nil {
		h.logger.Error("list organizations", slog.Any("error", err))
		httpx.RespondError(w, shared.ErrStoreUnavailable)
		return
	}
	if orgs == nil {
		orgs = []Organization{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (h *Handler) invoiceDefaults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.directory.Lookup(r.Context(), id); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("lookup site", slog.Any("error", err))
			err = shared.ErrStoreUnavailable
		}
		httpx.RespondError(w, err)
		return
	}
	defaults, err := h.directory.InvoiceDefaults(r.Context(), id)
	if err != nil {
		h.logger.Error("invoice defaults", slog.String("site", id), slog.Any("error", err))
		httpx.RespondError(w, shared.ErrStoreUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, defaults)
}
