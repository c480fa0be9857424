package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/nvisust/authserver/internal/services"
	"github.com/nvisust/authserver/internal/storage"
)

const (
	maxAvatarMemory = 8 << 20
	maxAvatarBytes  = 5 << 20
	formFieldAvatar = "avatar"
)

// ProfileHandler provides the self-service profile endpoints. The target
// is always the authenticated actor; no ID is ever taken from the path.
type ProfileHandler struct {
	userService *services.UserService
	userHandler *UserHandler
	avatars     *storage.Avatars
}

// NewProfileHandler constructs a ProfileHandler. avatars may be nil when
// no object-storage backend is configured.
func NewProfileHandler(userService *services.UserService, userHandler *UserHandler, avatars *storage.Avatars) *ProfileHandler {
	return &ProfileHandler{
		userService: userService,
		userHandler: userHandler,
		avatars:     avatars,
	}
}

// ProfileRouter registers the own-profile routes on the given router.
func ProfileRouter(r chi.Router, handler *ProfileHandler, auth *AuthMiddleware) {
	r.Use(auth.Authenticate)
	r.Get("/", handler.GetProfile)
	r.Put("/", handler.UpdateProfile)
	r.Patch("/", handler.UpdateProfile)
	r.Post("/avatar", handler.UploadAvatar)
	r.Get("/avatar", handler.GetAvatar)
}

// GetProfile returns the authenticated user's own record.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, actor)
}

// UpdateProfile applies a partial update to the actor's own record,
// with the same semantics as the admin update endpoint.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.userHandler.applyUpdate(w, r, actor.ID, req)
	if err != nil {
		return // response already written
	}
	writeJSON(w, http.StatusOK, updated)
}

// UploadAvatar stores a new avatar image for the actor and records its
// object key in the profile. The previous object is deleted best-effort.
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "avatar storage is not configured")
		return
	}

	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filename, contentType, data, err := parseAvatarUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.avatars.Upload(r.Context(), actor.ID, filename, contentType, data)
	if err != nil {
		log.Printf("upload avatar for user %d: %v", actor.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	var oldKey string
	if actor.Profile != nil && actor.Profile.Avatar != nil {
		oldKey = *actor.Profile.Avatar
	}

	profile := mergeProfile(actor.Profile, UpdateProfileRequest{Avatar: &key})
	if err := h.userService.UpsertProfile(r.Context(), actor.ID, profile); err != nil {
		log.Printf("record avatar for user %d: %v", actor.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}

	if oldKey != "" && oldKey != key {
		if err := h.avatars.Remove(r.Context(), oldKey); err != nil {
			log.Printf("remove old avatar %q: %v", oldKey, err)
		}
	}

	updated, err := h.userService.GetByID(r.Context(), actor.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// GetAvatar streams the actor's stored avatar image.
func (h *ProfileHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	if h.avatars == nil {
		writeError(w, http.StatusServiceUnavailable, "avatar storage is not configured")
		return
	}

	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if actor.Profile == nil || actor.Profile.Avatar == nil || *actor.Profile.Avatar == "" {
		writeError(w, http.StatusNotFound, "no avatar set")
		return
	}
	key := *actor.Profile.Avatar

	reader, err := h.avatars.Open(r.Context(), key)
	if err != nil {
		log.Printf("open avatar %q: %v", key, err)
		writeError(w, http.StatusNotFound, "no avatar set")
		return
	}
	defer reader.Close()

	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if _, err := io.Copy(w, reader); err != nil {
		log.Printf("stream avatar %q: %v", key, err)
	}
}

func parseAvatarUpload(r *http.Request) (filename, contentType string, data []byte, err error) {
	if err := r.ParseMultipartForm(maxAvatarMemory); err != nil {
		return "", "", nil, errors.New("invalid multipart form")
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File[formFieldAvatar]) == 0 {
		return "", "", nil, errors.New("avatar file is required")
	}
	files := r.MultipartForm.File[formFieldAvatar]
	if len(files) > 1 {
		return "", "", nil, errors.New("only one avatar file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return "", "", nil, errors.New("failed to read avatar file")
	}
	data, err = readFileLimited(file, maxAvatarBytes)
	_ = file.Close()
	if err != nil {
		return "", "", nil, err
	}

	contentType = fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", "", nil, errors.New("avatar must be an image")
	}

	return fileHeader.Filename, contentType, data, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
