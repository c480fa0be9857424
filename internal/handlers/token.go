package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nvisust/authserver/internal/tokens"
)

// TokenHandler exchanges refresh tokens for new access tokens. The
// refresh token itself is the credential; no bearer auth is required.
type TokenHandler struct {
	tokens *tokens.Manager
}

func NewTokenHandler(manager *tokens.Manager) *TokenHandler {
	return &TokenHandler{tokens: manager}
}

// TokenRouter registers token routes on the given router.
func TokenRouter(r chi.Router, handler *TokenHandler) {
	r.Post("/refresh", handler.Refresh)
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type RefreshResponse struct {
	Access string `json:"access"`
}

// Refresh validates the refresh token against signature, expiry, and the
// revocation list, then mints a new access token.
func (h *TokenHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Refresh == "" {
		writeFieldErrors(w, http.StatusBadRequest, map[string]string{"refresh": "This field is required"})
		return
	}

	access, err := h.tokens.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	writeJSON(w, http.StatusOK, RefreshResponse{Access: access})
}
