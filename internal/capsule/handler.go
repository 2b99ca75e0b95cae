// AngelaMos | 2026
// handler.go

package capsule

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/eternal-vault/internal/account"
	"github.com/carterperez-dev/eternal-vault/internal/core"
	"github.com/carterperez-dev/eternal-vault/internal/middleware"
)

const maxPublicPage = 500

type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

type Handler struct {
	engine    *Engine
	accounts  AccountLookup
	validator *validator.Validate
}

func NewHandler(engine *Engine, accounts AccountLookup) *Handler {
	return &Handler{
		engine:    engine,
		accounts:  accounts,
		validator: core.NewValidator(),
	}
}

// RegisterRoutes mounts /capsules. Email-identified routes accept an
// optional bearer token, the id routes require one. accessLimiter guards
// the paid code lookup.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, optionalAuth, accessLimiter func(http.Handler) http.Handler,
) {
	r.Route("/capsules", func(r chi.Router) {
		r.Get("/public", h.ListPublic)
		r.With(optionalAuth).Post("/create", h.Create)
		r.With(accessLimiter, optionalAuth).Post("/private", h.AccessPrivate)
		r.With(optionalAuth).Post("/delete", h.DeleteByEmail)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Get("/user/{userID}", h.ListByCreator)
			r.Get("/{capsuleID}", h.Get)
			r.Put("/{capsuleID}", h.Update)
			r.Delete("/{capsuleID}", h.Delete)
		})
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}

	unlock, err := core.ParseDay(req.DateOfOpening, h.engine.Location())
	if err != nil {
		core.BadRequest(w, "dateOfOpening must be a date (YYYY-MM-DD)")
		return
	}

	if err := h.matchToken(r, req.Email); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.engine.CreateCapsule(r.Context(), req.Email, CreateInput{
		Kind:          req.Type,
		Name:          req.Name,
		Message:       req.Message,
		UnlockDate:    unlock,
		Media:         req.Media,
		Links:         req.Links,
		IsShared:      req.IsShared,
		AllowedEmails: req.AllowedUsers,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToOwnerResponse(c))
}

func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	limit := maxPublicPage
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPublicPage)
	}

	items := make([]PublicCapsuleResponse, 0)
	for view, err := range h.engine.ListPublic(r.Context(), h.engine.Now()) {
		if err != nil {
			core.InternalServerError(w, err)
			return
		}
		items = append(items, ToPublicResponse(view))
		if len(items) == limit {
			break
		}
	}

	core.OK(w, PublicListResponse{Capsules: items})
}

func (h *Handler) AccessPrivate(w http.ResponseWriter, r *http.Request) {
	var req AccessRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.matchToken(r, req.Email); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.AccessPrivate(r.Context(), req.Email, req.UniqueCode)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Sealed {
		unlock := formatDay(result.UnlockDate)
		core.JSONError(w, core.SealedError(
			fmt.Sprintf("capsule is sealed until %s", unlock),
		).WithDetails(map[string]any{
			"capsuleId":  result.CapsuleID,
			"unlockDate": unlock,
			"charged":    result.Charged,
		}))
		return
	}

	core.OK(w, AccessResponse{
		Capsule: ToViewerResponse(result.Capsule),
		Charged: result.Charged,
	})
}

func (h *Handler) DeleteByEmail(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.matchToken(r, req.Email); err != nil {
		writeError(w, err)
		return
	}

	if err := h.engine.DeleteCapsule(r.Context(), req.Email, req.CapsuleID); err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, MessageResponse{Message: "capsule deleted"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.engine.DeleteOwned(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "capsuleID"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, MessageResponse{Message: "capsule deleted"})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !h.decode(w, r, &req) {
		return
	}

	patch := Patch{
		Name:          req.Name,
		Message:       req.Message,
		Media:         req.Media,
		Links:         req.Links,
		AllowedEmails: req.AllowedUsers,
		Kind:          req.Type,
		Creator:       req.Creator,
		IsShared:      req.IsShared,
	}
	if req.DateOfOpening != nil {
		unlock, err := core.ParseDay(*req.DateOfOpening, h.engine.Location())
		if err != nil {
			core.BadRequest(w, "dateOfOpening must be a date (YYYY-MM-DD)")
			return
		}
		patch.UnlockDate = &unlock
	}

	c, err := h.engine.EditCapsule(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "capsuleID"),
		patch,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToOwnerResponse(c))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.GetOwned(
		r.Context(),
		requester(r.Context()),
		chi.URLParam(r, "capsuleID"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToOwnerResponse(c))
}

func (h *Handler) ListByCreator(w http.ResponseWriter, r *http.Request) {
	capsules, err := h.engine.ListByCreator(
		r.Context(),
		requester(r.Context()),
		chi.URLParam(r, "userID"),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, CapsuleListResponse{Capsules: ToOwnerResponseList(capsules)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := core.DecodeJSON(r, dst); err != nil {
		core.BadRequest(w, core.ErrorMessage(err))
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}
	return true
}

// matchToken rejects a request whose bearer token belongs to a different
// account than the email in the body. Anonymous requests pass.
func (h *Handler) matchToken(r *http.Request, email string) error {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		return nil
	}

	a, err := h.accounts.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("token account missing: %w", core.ErrForbidden)
		}
		return err
	}

	if a.Email != account.NormalizeEmail(email) {
		return fmt.Errorf("token does not match email: %w", core.ErrForbidden)
	}
	return nil
}

func requester(ctx context.Context) Requester {
	return Requester{
		ID:    middleware.GetUserID(ctx),
		Admin: middleware.IsAdmin(ctx),
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, core.ErrorMessage(err))
	case errors.Is(err, core.ErrInsufficientFunds):
		core.JSONError(w, core.InsufficientFundsError())
	case errors.Is(err, ErrRequesterNotFound):
		core.NotFound(w, "user")
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "capsule")
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "not allowed to act on this capsule")
	case errors.Is(err, context.DeadlineExceeded):
		core.JSONError(w, core.NewAppError(
			err,
			"request timed out",
			http.StatusGatewayTimeout,
			"TIMEOUT",
		))
	default:
		core.InternalServerError(w, err)
	}
}
