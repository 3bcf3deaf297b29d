package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/choosewine/choosewine-api/internal/auth"
	"github.com/choosewine/choosewine-api/internal/domain"
	"github.com/choosewine/choosewine-api/internal/repository"
)

type registerRequest struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Password string  `json:"password"`
	Photo    *string `json:"photo"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Photo     *string   `json:"photo,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type profileUpdateRequest struct {
	Name string `json:"name"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		s.respondServiceError(w, r, err, "Failed to register user")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to register user")
		return
	}

	role := domain.RoleUser
	if s.cfg.IsAdminEmail(req.Email) {
		role = domain.RoleAdmin
	}

	user, err := s.repo.Users.Create(r.Context(), repository.UserParams{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         role,
		Photo:        normalizeStringPtr(req.Photo),
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.respondError(w, http.StatusConflict, "CONFLICT", "Email already registered")
			return
		}
		s.respondServiceError(w, r, err, "Failed to register user")
		return
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", user.Role))
	s.respondJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	user, err := s.repo.Users.GetByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.respondServiceError(w, r, err, "Failed to log in")
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password")
		return
	}

	// Accounts registered before their email was listed in ADMIN_EMAILS are
	// promoted on their next login.
	if user.Role == domain.RoleUser && s.cfg.IsAdminEmail(user.Email) {
		user, err = s.repo.Users.SetRole(r.Context(), user.ID, domain.RoleAdmin)
		if err != nil {
			s.respondServiceError(w, r, err, "Failed to log in")
			return
		}
		s.logger.Info("user promoted to admin", zap.String("user_id", user.ID))
	}

	token, expiresAt, err := s.issuer.Issue(user.ID, user.Role)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to log in")
		return
	}
	s.respondJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      toUserResponse(user),
	})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	user, err := s.repo.Users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to fetch profile")
		return
	}
	s.respondJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	var req profileUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.respondServiceError(w, r, domain.NewValidationError("name", "is required"), "Failed to update profile")
		return
	}

	user, err := s.repo.Users.UpdateName(r.Context(), identity.UserID, name)
	if err != nil {
		s.respondServiceError(w, r, err, "Failed to update profile")
		return
	}
	s.respondJSON(w, http.StatusOK, toUserResponse(user))
}

func (req registerRequest) validate() error {
	email := strings.TrimSpace(req.Email)
	at := strings.Index(email, "@")
	if at <= 0 || !strings.Contains(email[at:], ".") {
		return domain.NewValidationError("email", "must be a valid address")
	}
	if strings.TrimSpace(req.Name) == "" {
		return domain.NewValidationError("name", "is required")
	}
	if len(req.Password) < auth.MinPasswordLength {
		return domain.NewValidationError("password", "is too short")
	}
	return nil
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Photo:     u.Photo,
		CreatedAt: u.CreatedAt,
	}
}
