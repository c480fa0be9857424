package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/nvisust/authserver/internal/events"
	"github.com/nvisust/authserver/internal/services"
	"github.com/nvisust/authserver/internal/store"
	"github.com/nvisust/authserver/types"
)

// UserHandler provides the admin/manager user management endpoints.
type UserHandler struct {
	userService *services.UserService
	authHandler *AuthHandler
	events      *events.Publisher
}

// NewUserHandler constructs a UserHandler. The AuthHandler is reused for
// its account-creation validation.
func NewUserHandler(userService *services.UserService, authHandler *AuthHandler, publisher *events.Publisher) *UserHandler {
	return &UserHandler{
		userService: userService,
		authHandler: authHandler,
		events:      publisher,
	}
}

// UserRouter registers user management routes on the given router.
// Listing requires manager or above; everything else is admin only.
func UserRouter(r chi.Router, handler *UserHandler, auth *AuthMiddleware) {
	r.Use(auth.Authenticate)
	r.With(auth.RequireRole(types.RoleManager)).Get("/", handler.ListUsers)
	r.With(auth.RequireRole(types.RoleManager)).Post("/", handler.CreateUser)
	r.Route("/{userID}", func(r chi.Router) {
		r.Use(auth.RequireRole(types.RoleAdmin))
		r.Get("/", handler.GetUser)
		r.Put("/", handler.UpdateUser)
		r.Patch("/", handler.UpdateUser)
		r.Delete("/", handler.DeleteUser)
	})
}

// ListUsers returns the users visible to the actor: admins see everyone,
// managers see employees only. Anything else falls back to an empty
// list rather than an error.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var users []types.User
	switch actor.Role {
	case types.RoleAdmin:
		users, err = h.userService.List(r.Context())
	case types.RoleManager:
		users, err = h.userService.ListByRole(r.Context(), types.RoleEmployee)
	default:
		users = []types.User{}
	}
	if err != nil {
		log.Printf("list users: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// CreateUser creates an account on behalf of an admin. Managers can
// reach this route through the manager gate on the collection but are
// rejected here: list access does not imply write access.
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if actor.Role != types.RoleAdmin {
		writeError(w, http.StatusForbidden, "Only admins can create users")
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, fieldErrs, err := h.authHandler.createUser(r, req)
	if err != nil {
		h.authHandler.writeCreateError(w, err)
		return
	}
	if len(fieldErrs) > 0 {
		writeFieldErrors(w, http.StatusBadRequest, fieldErrs)
		return
	}

	h.events.UserCreated(r.Context(), user)
	writeJSON(w, http.StatusCreated, user)
}

// GetUser returns a single user by ID.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateUser applies a partial update to a user and, when profile fields
// are supplied, creates or updates the associated profile.
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.applyUpdate(w, r, id, req)
	if err != nil {
		return // response already written
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteUser removes a user and, by cascade, its profile. Deleting the
// actor's own account is rejected.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if id == actor.ID {
		writeError(w, http.StatusForbidden, "Cannot delete your own account")
		return
	}

	target, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	if err := h.userService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	h.events.UserDeleted(r.Context(), target)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateUserRequest is the partial-update payload shared by the admin
// update endpoint and the own-profile endpoint. Absent fields are left
// unchanged.
type UpdateUserRequest struct {
	FirstName  *string               `json:"first_name"`
	LastName   *string               `json:"last_name"`
	Phone      *string               `json:"phone"`
	Department *string               `json:"department"`
	IsActive   *bool                 `json:"is_active"`
	Role       *string               `json:"role"`
	Profile    *UpdateProfileRequest `json:"profile"`
}

// UpdateProfileRequest carries the optional nested profile fields.
type UpdateProfileRequest struct {
	Bio         *string `json:"bio"`
	Avatar      *string `json:"avatar"`
	Address     *string `json:"address"`
	DateOfBirth *string `json:"date_of_birth"`
}

// applyUpdate merges the supplied fields into the stored user, persists
// the result, and returns the refreshed view. On failure it writes the
// response itself and returns a non-nil error.
func (h *UserHandler) applyUpdate(w http.ResponseWriter, r *http.Request, id int, req UpdateUserRequest) (types.User, error) {
	ctx := r.Context()

	user, err := h.userService.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return types.User{}, err
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return types.User{}, err
	}

	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Department != nil {
		user.Department = strings.TrimSpace(*req.Department)
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.Role != nil {
		role, err := types.ParseRole(*req.Role)
		if err != nil {
			writeFieldErrors(w, http.StatusBadRequest, map[string]string{"role": "Invalid role"})
			return types.User{}, err
		}
		user.Role = role
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone != "" && phone != user.Phone {
			taken, err := h.userService.ExistsPhone(ctx, phone)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to update user")
				return types.User{}, err
			}
			if taken {
				writeFieldErrors(w, http.StatusBadRequest, map[string]string{"phone": "Phone number already in use"})
				return types.User{}, errors.New("phone in use")
			}
		}
		user.Phone = phone
	}

	if _, err := h.userService.Update(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeFieldErrors(w, http.StatusBadRequest, map[string]string{"phone": "Phone number already in use"})
			return types.User{}, err
		}
		log.Printf("update user %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return types.User{}, err
	}

	if req.Profile != nil {
		profile := mergeProfile(user.Profile, *req.Profile)
		if err := h.userService.UpsertProfile(ctx, id, profile); err != nil {
			log.Printf("update profile for user %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, "failed to update profile")
			return types.User{}, err
		}
	}

	updated, err := h.userService.GetByID(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return types.User{}, err
	}
	return updated, nil
}

// mergeProfile overlays supplied profile fields on the existing profile,
// starting from an empty one when the user has no profile yet.
func mergeProfile(existing *types.UserProfile, req UpdateProfileRequest) types.UserProfile {
	var profile types.UserProfile
	if existing != nil {
		profile = *existing
	}
	if req.Bio != nil {
		profile.Bio = req.Bio
	}
	if req.Avatar != nil {
		profile.Avatar = req.Avatar
	}
	if req.Address != nil {
		profile.Address = req.Address
	}
	if req.DateOfBirth != nil {
		profile.DateOfBirth = req.DateOfBirth
	}
	return profile
}
