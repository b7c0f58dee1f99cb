package apitest

import (
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/f1v3nt5/poketroid/internal/models"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type credentialsRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == nil || req.Password == nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Missing required fields"})
		return
	}

	username := strings.TrimSpace(*req.Username)
	if !usernamePattern.MatchString(username) {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Invalid username. Only letters, numbers and _ allowed"})
		return
	}

	b.mu.Lock()
	_, taken := b.byUsername[username]
	b.mu.Unlock()
	if taken {
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "Username already exists"})
		return
	}

	if len(*req.Password) < 8 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Password must be at least 8 characters"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.MinCost)
	if err != nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	b.mu.Lock()
	user := b.addUserLocked(models.User{Username: username}, hash)
	b.mu.Unlock()

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"user_id": user.ID,
	})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == nil || req.Password == nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	b.mu.Lock()
	var acc *account
	if id, ok := b.byUsername[*req.Username]; ok {
		acc = b.accounts[id]
	}
	b.mu.Unlock()

	if acc == nil || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(*req.Password)) != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"token":      b.Token(acc.user.ID, TokenTTL),
		"user_id":    acc.user.ID,
		"username":   acc.user.Username,
		"avatar_url": nullable(acc.user.Avatar),
	})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
