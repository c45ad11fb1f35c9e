package api

import (
	"net/http"

	"portfolio-backend/internal/auth"

	"github.com/gorilla/mux"
)

// ProtectedContent is served to any caller with a valid access token.
const ProtectedContent = "This is protected content only visible to authenticated users."

// PublicMessage is served by the public-data endpoint.
const PublicMessage = "This is public data accessible to anyone."

// AuthHandler serves GET /api/auth?endpoint=... : protected-content and
// user-data require a bearer token, public-data does not.
type AuthHandler struct {
	protect func(http.Handler) http.Handler
}

// NewAuthHandler creates an AuthHandler. protect is the bearer middleware
// guarding the protected endpoints.
func NewAuthHandler(protect func(http.Handler) http.Handler) *AuthHandler {
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}
	return &AuthHandler{protect: protect}
}

// RegisterRoutes registers auth routes
func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth", h.dispatch).Methods(http.MethodGet)
}

func (h *AuthHandler) dispatch(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("endpoint") {
	case "protected-content":
		h.protect(http.HandlerFunc(h.protectedContent)).ServeHTTP(w, r)
	case "user-data":
		h.protect(http.HandlerFunc(h.userData)).ServeHTTP(w, r)
	case "public-data":
		h.publicData(w, r)
	default:
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Endpoint not found"})
	}
}

func (h *AuthHandler) protectedContent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProtectedContentResponse{Success: true, Content: ProtectedContent})
}

// userData returns the caller's profile from the token claims
func (h *AuthHandler) userData(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "No token provided"})
		return
	}

	writeJSON(w, http.StatusOK, UserDataResponse{
		Success: true,
		User: UserData{
			Sub:     user.Sub,
			Name:    user.Name,
			Email:   user.Email,
			Picture: user.Picture,
		},
	})
}

func (h *AuthHandler) publicData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: PublicMessage})
}
