// AngelaMos | 2026
// handler.go

package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/eternal-vault/internal/core"
)

const SetupTokenHeader = "X-Setup-Token"

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

// RegisterRoutes mounts the credential endpoints on the /auth sub-router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/create-admin", h.CreateAdmin)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.BadRequest(w, core.ErrorMessage(err))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	if err := h.service.Register(r.Context(), req); err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, MessageResponse{Message: "user registered successfully"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.BadRequest(w, core.ErrorMessage(err))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			slog.InfoContext(r.Context(), "login rejected",
				"ip", extractIPAddress(r),
			)
			core.JSONError(w, core.NewAppError(
				err,
				"invalid email or password",
				http.StatusBadRequest,
				"INVALID_CREDENTIALS",
			))
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.BadRequest(w, core.ErrorMessage(err))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	user, err := h.service.CreateAdmin(
		r.Context(),
		r.Header.Get(SetupTokenHeader),
		req,
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrSetupDisabled):
			core.NotFound(w, "route")
		case errors.Is(err, core.ErrForbidden):
			slog.WarnContext(r.Context(), "admin setup token rejected",
				"ip", extractIPAddress(r),
			)
			core.Forbidden(w, "invalid setup token")
		case errors.Is(err, ErrCredentialsTaken):
			core.JSONError(w, core.DuplicateError("email or username"))
		default:
			core.InternalServerError(w, err)
		}
		return
	}

	core.Created(w, user)
}

func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[len(ips)-1])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
