// AngelaMos | 2026
// handler.go

package account

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/eternal-vault/internal/core"
	"github.com/carterperez-dev/eternal-vault/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: core.NewValidator(),
	}
}

// RegisterProfileRoutes mounts profile endpoints on the /auth sub-router.
func (h *Handler) RegisterProfileRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Get("/profile/{userID}", h.GetProfile)
	r.With(authenticator).Put("/profile", h.UpdateProfile)
}

func (h *Handler) RegisterLeaderboardRoutes(r chi.Router) {
	r.Get("/leaderboard", h.Leaderboard)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInvalidInput):
			core.BadRequest(w, "invalid user id")
		case errors.Is(err, core.ErrNotFound):
			core.NotFound(w, "user")
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	core.OK(w, ToProfileResponse(a))
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.BadRequest(w, core.ErrorMessage(err))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	a, err := h.service.UpdateProfile(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req,
	)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrDuplicateKey):
			core.JSONError(w, core.DuplicateError("username"))
		case errors.Is(err, core.ErrNotFound):
			core.NotFound(w, "user")
		case errors.Is(err, core.ErrUnauthorized):
			core.Unauthorized(w, "")
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	core.OK(w, ToProfileResponse(a))
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = defaultLeaderboardSize
	}

	accounts, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, ToLeaderboard(accounts))
}
