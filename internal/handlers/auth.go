package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/nvisust/authserver/internal/events"
	"github.com/nvisust/authserver/internal/services"
	"github.com/nvisust/authserver/internal/store"
	"github.com/nvisust/authserver/internal/tokens"
	"github.com/nvisust/authserver/types"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler provides registration, login, and logout endpoints.
type AuthHandler struct {
	userService *services.UserService
	tokens      *tokens.Manager
	events      *events.Publisher
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, manager *tokens.Manager, publisher *events.Publisher) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      manager,
		events:      publisher,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, auth *AuthMiddleware) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(auth.Authenticate).Post("/logout", handler.Logout)
}

// AuthMiddleware resolves the bearer token to an authenticated actor and
// threads it through the request context.
type AuthMiddleware struct {
	tokens      *tokens.Manager
	userService *services.UserService
}

func NewAuthMiddleware(manager *tokens.Manager, userService *services.UserService) *AuthMiddleware {
	return &AuthMiddleware{tokens: manager, userService: userService}
}

// Authenticate verifies the access token and loads the actor. The actor's
// is_active flag is deliberately not re-checked here: deactivation takes
// effect at the next login, matching the account lifecycle policy.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		userID, err := m.tokens.VerifyAccess(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		actor, err := m.userService.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load user")
			return
		}

		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

// RequireRole gates a route on the actor holding at least the threshold
// role. Must run after Authenticate.
func (m *AuthMiddleware) RequireRole(threshold types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := actorFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !actor.Role.AtLeast(threshold) {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRequest is the payload for self-registration and for
// admin-initiated user creation.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
	Phone           string `json:"phone"`
	Department      string `json:"department"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LogoutRequest struct {
	Refresh string `json:"refresh"`
}

// TokenPairResponse is returned by register and login.
type TokenPairResponse struct {
	User    types.User `json:"user"`
	Refresh string     `json:"refresh"`
	Access  string     `json:"access"`
}

// Register creates a new account and returns a fresh token pair.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, fieldErrs, err := h.createUser(r, req)
	if err != nil {
		h.writeCreateError(w, err)
		return
	}
	if len(fieldErrs) > 0 {
		writeFieldErrors(w, http.StatusBadRequest, fieldErrs)
		return
	}

	h.events.UserRegistered(r.Context(), user)

	access, refresh, err := h.tokens.IssuePair(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, TokenPairResponse{User: user, Refresh: refresh, Access: access})
}

// Login verifies credentials and returns a fresh token pair. Prior
// sessions stay valid; there is no single-session enforcement.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if !user.IsActive {
		writeError(w, http.StatusUnauthorized, "Account is deactivated")
		return
	}

	access, refresh, err := h.tokens.IssuePair(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, TokenPairResponse{User: user, Refresh: refresh, Access: access})
}

// Logout blacklists the presented refresh token. Any token failure maps
// to the same generic invalid-token response.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid token")
		return
	}

	if err := h.tokens.Revoke(r.Context(), req.Refresh); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid token")
		return
	}

	writeJSON(w, http.StatusResetContent, map[string]string{"message": "Successfully logged out"})
}

// createUser validates a RegisterRequest and persists the account. It is
// shared by self-registration and the admin create endpoint.
func (h *AuthHandler) createUser(r *http.Request, req RegisterRequest) (types.User, map[string]string, error) {
	fieldErrs := map[string]string{}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	if req.Username == "" {
		fieldErrs["username"] = "This field is required"
	}
	if req.Email == "" {
		fieldErrs["email"] = "This field is required"
	} else if !strings.Contains(req.Email, "@") {
		fieldErrs["email"] = "Enter a valid email address"
	}
	if msg := validatePassword(req.Password); msg != "" {
		fieldErrs["password"] = msg
	}
	if req.Password != req.ConfirmPassword {
		fieldErrs["confirm_password"] = "Passwords don't match"
	}

	role, err := types.ParseRole(req.Role)
	if err != nil {
		fieldErrs["role"] = "Invalid role"
	}

	ctx := r.Context()
	if req.Username != "" {
		taken, err := h.userService.ExistsUsername(ctx, req.Username)
		if err != nil {
			return types.User{}, nil, err
		}
		if taken {
			fieldErrs["username"] = "Username already taken"
		}
	}
	if req.Email != "" && fieldErrs["email"] == "" {
		if _, err := h.userService.GetByEmail(ctx, req.Email); err == nil {
			fieldErrs["email"] = "Email already in use"
		} else if !errors.Is(err, store.ErrNotFound) {
			return types.User{}, nil, err
		}
	}
	if req.Phone != "" {
		taken, err := h.userService.ExistsPhone(ctx, req.Phone)
		if err != nil {
			return types.User{}, nil, err
		}
		if taken {
			fieldErrs["phone"] = "Phone number already in use"
		}
	}

	if len(fieldErrs) > 0 {
		return types.User{}, fieldErrs, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, nil, err
	}

	user, err := h.userService.Create(ctx, types.User{
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
		Phone:        req.Phone,
		Department:   strings.TrimSpace(req.Department),
		IsActive:     true,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return types.User{}, nil, err
	}
	return user, nil, nil
}

func (h *AuthHandler) writeCreateError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrConflict) {
		// Lost a race against a concurrent insert with the same
		// username, email, or phone.
		writeError(w, http.StatusConflict, "user already exists")
		return
	}
	log.Printf("create user: %v", err)
	writeError(w, http.StatusInternalServerError, "failed to create user")
}

// validatePassword mirrors the password rules enforced at registration:
// at least eight characters and not entirely numeric.
func validatePassword(password string) string {
	if len(password) < 8 {
		return "Password must be at least 8 characters"
	}
	allDigits := true
	for _, r := range password {
		if !unicode.IsDigit(r) {
			allDigits = false
			break
		}
	}
	if allDigits {
		return "Password cannot be entirely numeric"
	}
	return ""
}
