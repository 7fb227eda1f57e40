package finance

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sudandp/paradigm-ifs-sub000/internal/platform/httpx"
	"github.com/sudandp/paradigm-ifs-sub000/internal/rbac"
	"github.com/sudandp/paradigm-ifs-sub000/internal/shared"
)

const (
	idempotencyModule = "finance.import"
	maxImportBytes    = 8 << 20
)

// IdempotencyClaimer guards resubmitted imports.
type IdempotencyClaimer interface {
	Claim(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// Handler exposes finance record endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	rbac        rbac.Middleware
	idempotency IdempotencyClaimer
	validate    *validator.Validate
}

// NewHandler constructs a Handler. idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware, idempotency IdempotencyClaimer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		rbac:        rbacMW,
		idempotency: idempotency,
		validate:    newValidator(),
	}
}

// MountRoutes registers finance record routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireActor)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.OpFinanceView))
		r.Get("/", h.listActive)
		r.Get("/deleted", h.listDeleted)
		r.Get("/draft", h.draft)
		r.Get("/export", h.export)
		r.Get("/{id}", h.get)
		r.Get("/{id}/audit", h.history)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.OpFinanceEdit))
		r.Post("/", h.save)
		r.Post("/bulk", h.bulkSave)
		r.Post("/import", h.importFile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.OpFinanceDelete))
		r.Post("/{id}/delete", h.softDelete)
		r.Post("/bulk-delete", h.bulkSoftDelete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.OpFinanceRestore))
		r.Post("/{id}/restore", h.restore)
		r.Post("/bulk-restore", h.bulkRestore)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.OpFinancePurge))
		r.Delete("/{id}", h.purge)
		r.Post("/bulk-purge", h.bulkPurge)
	})
}

type deleteRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type bulkIDsRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,max=500,dive,required,max=64"`
	Reason string   `json:"reason,omitempty" validate:"max=500"`
}

type bulkSaveRequest struct {
	Records []RecordInput `json:"records" validate:"required,min=1,max=1000"`
}

type listResponse struct {
	Records []RecordView `json:"records"`
	Month   string       `json:"month,omitempty"`
}

type bulkResponse struct {
	Message   string       `json:"message"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []ItemResult `json:"results"`
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	month, err := h.monthParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	recs, err := h.service.ListActive(r.Context(), actor, month)
	if err != nil {
		h.fail(w, "list active", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Records: h.service.Views(recs, actor.Role, h.service.Now()),
		Month:   month.Format("2006-01"),
	})
}

func (h *Handler) listDeleted(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	recs, err := h.service.ListDeleted(r.Context(), actor)
	if err != nil {
		h.fail(w, "list deleted", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Records: h.service.Views(recs, actor.Role, h.service.Now())})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	rec, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.View(rec, actor.Role, h.service.Now()))
}

func (h *Handler) draft(w http.ResponseWriter, r *http.Request) {
	month, err := h.monthParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	siteID := strings.TrimSpace(r.URL.Query().Get("site_id"))
	if siteID == "" {
		httpx.RespondError(w, &ValidationError{Field: "site_id", Reason: "is required"})
		return
	}
	in, err := h.service.Draft(r.Context(), siteID, month)
	if err != nil {
		h.fail(w, "draft record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, in)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var in RecordInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, &ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	rec, err := h.service.Save(r.Context(), actor, in)
	if err != nil {
		h.fail(w, "save record", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.View(rec, actor.Role, h.service.Now()))
}

func (h *Handler) bulkSave(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req bulkSaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.BulkSave(r.Context(), actor, req.Records)
	if err != nil {
		h.fail(w, "bulk save", err)
		return
	}
	h.respondBulk(w, res, "saved")
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	month, err := h.monthParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inputs, err := ReadImport(http.MaxBytesReader(w, r.Body, maxImportBytes), month)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Claim(r.Context(), key, idempotencyModule); err != nil {
			if !errors.Is(err, shared.ErrIdempotencyConflict) {
				h.logger.Error("claim idempotency key", slog.Any("error", err))
				err = shared.ErrStoreUnavailable
			}
			httpx.RespondError(w, err)
			return
		}
	}

	res, err := h.service.BulkSave(r.Context(), actor, inputs)
	if key != "" && h.idempotency != nil && (err != nil || res.Succeeded() == 0) {
		if relErr := h.idempotency.Release(r.Context(), key, idempotencyModule); relErr != nil {
			h.logger.Warn("release idempotency key", slog.Any("error", relErr))
		}
	}
	if err != nil {
		h.fail(w, "import", err)
		return
	}
	h.respondBulk(w, res, "imported")
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	month, err := h.monthParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	recs, err := h.service.ListActive(r.Context(), actor, month)
	if err != nil {
		h.fail(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="finance-`+month.Format("2006-01")+`.csv"`)
	if err := WriteExport(w, recs); err != nil {
		h.logger.Error("write export", slog.Any("error", err))
	}
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req deleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.service.SoftDelete(r.Context(), actor, id, req.Reason); err != nil {
		h.fail(w, "soft delete", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "record moved to deletion log", "id": id})
}

func (h *Handler) bulkSoftDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req bulkIDsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.BulkSoftDelete(r.Context(), actor, req.IDs, req.Reason)
	if err != nil {
		h.fail(w, "bulk soft delete", err)
		return
	}
	h.respondBulk(w, res, "deleted")
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.service.Restore(r.Context(), actor, id); err != nil {
		h.fail(w, "restore", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "record restored", "id": id})
}

func (h *Handler) bulkRestore(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req bulkIDsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.BulkRestore(r.Context(), actor, req.IDs)
	if err != nil {
		h.fail(w, "bulk restore", err)
		return
	}
	h.respondBulk(w, res, "restored")
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.service.Purge(r.Context(), actor, id); err != nil {
		h.fail(w, "purge", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "record permanently deleted", "id": id})
}

func (h *Handler) bulkPurge(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	var req bulkIDsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.BulkPurge(r.Context(), actor, req.IDs)
	if err != nil {
		h.fail(w, "bulk purge", err)
		return
	}
	h.respondBulk(w, res, "permanently deleted")
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	logs, err := h.service.History(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "audit history", err)
		return
	}
	if logs == nil {
		logs = []shared.AuditLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": logs})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		httpx.RespondError(w, &ValidationError{Field: "body", Reason: err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.RespondError(w, &ValidationError{Field: fieldErrs[0].Field(), Reason: describeTag(fieldErrs[0])})
			return false
		}
		httpx.RespondError(w, &ValidationError{Reason: err.Error()})
		return false
	}
	return true
}

func (h *Handler) monthParam(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("month"))
	if raw == "" {
		return MonthStart(h.service.Now()), nil
	}
	return ParseMonth(raw)
}

func (h *Handler) respondBulk(w http.ResponseWriter, res BulkResult, verb string) {
	status := http.StatusOK
	if !res.OK() {
		status = http.StatusMultiStatus
	}
	items := res.Items
	if items == nil {
		items = []ItemResult{}
	}
	httpx.JSON(w, status, bulkResponse{
		Message:   res.Summary(verb),
		Succeeded: res.Succeeded(),
		Failed:    res.Failed(),
		Results:   items,
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
