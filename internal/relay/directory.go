package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"cryptochat/internal/crypto"
	"cryptochat/internal/database"
	"cryptochat/internal/identity"
)

// unsafeUsernameChars mirrors the reference directory's username
// sanitization.
var unsafeUsernameChars = regexp.MustCompile("[<>\"'`;]")

var passwordSpecial = regexp.MustCompile(`[^A-Za-z0-9]`)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleRegister creates an account: a fresh RSA key pair, the private half
// sealed under the password, the password stored as a bcrypt hash. The relay
// keeps only sealed and public material.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	username := unsafeUsernameChars.ReplaceAllString(req.Username, "")
	if username == "" {
		s.writeError(w, http.StatusBadRequest, "Username is required", nil)
		return
	}
	if len(req.Password) < 8 || !passwordSpecial.MatchString(req.Password) {
		s.writeError(w, http.StatusBadRequest,
			"Password must be at least 8 characters and contain at least one special character.", nil)
		return
	}
	exists, err := s.store.UserExists(username)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Registration failed", err)
		return
	}
	if exists {
		s.writeError(w, http.StatusBadRequest, "Username already exists", nil)
		return
	}

	ident, err := identity.New(username)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Key generation failed", err)
		return
	}
	privatePEM, err := crypto.MarshalPrivateKey(ident.Private)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Key generation failed", err)
		return
	}
	publicPEM, err := crypto.MarshalPublicKey(ident.Public)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Key generation failed", err)
		return
	}
	sealed, salt, err := identity.SealPrivateKey(privatePEM, req.Password)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Key generation failed", err)
		return
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Registration failed", err)
		return
	}

	if err := s.store.CreateUser(&database.User{
		Username:         username,
		PasswordHash:     passwordHash,
		PublicKeyPEM:     publicPEM,
		SealedPrivateKey: sealed,
		KeySalt:          salt,
	}); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Registration failed", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"message":    "User registered successfully",
		"public_key": string(publicPEM),
	})
}

// handleLogin verifies the password, unseals the private key, and returns the
// identity material to its owner.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	username := unsafeUsernameChars.ReplaceAllString(req.Username, "")

	user, err := s.store.UserByName(username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		s.writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	privatePEM, err := identity.UnsealPrivateKey(user.SealedPrivateKey, user.KeySalt, req.Password)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Could not recover key material", err)
		return
	}
	if err := s.store.SetOnline(username, true); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"user": map[string]string{
			"username":    user.Username,
			"public_key":  string(user.PublicKeyPEM),
			"private_key": string(privatePEM),
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if err := s.store.SetOnline(req.Username, false); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Logout failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.OnlineUsers()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Directory unavailable", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"users": users})
}

// handlePublicKey serves a user's public key as a JWK.
func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	user, err := s.store.UserByName(username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "User not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Directory unavailable", err)
		return
	}
	pub, err := crypto.ParsePublicKey(user.PublicKeyPEM)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Stored key unreadable", err)
		return
	}
	jwk, err := identity.PublicKeyToJWK(username, pub)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Stored key unreadable", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]json.RawMessage{"public_key": jwk})
}
