package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrUnauthorized = errors.New("invalid or expired token")
	ErrUserDisabled = errors.New("user disabled")
)

const PermissionAdmin = "admin"

// AuthService validates operator bearer tokens, either against a static
// token or the external auth service's /users/current endpoint.
type AuthService struct {
	authURL       string
	operatorToken string
	client        *http.Client
}

type AuthUser struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Login       string   `json:"login"`
	Enabled     bool     `json:"enabled"`
}

func NewAuthService(authURL, operatorToken string, client *http.Client) *AuthService {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &AuthService{
		authURL:       strings.TrimRight(authURL, "/"),
		operatorToken: operatorToken,
		client:        client,
	}
}

// Enabled is false when neither a static token nor an auth URL is set, in
// which case the manual trigger is open.
func (a *AuthService) Enabled() bool {
	return a.operatorToken != "" || a.authURL != ""
}

func (a *AuthService) IsAdmin(user *AuthUser) bool {
	for _, perm := range user.Permissions {
		if perm == PermissionAdmin {
			return true
		}
	}
	return false
}

func (a *AuthService) ValidateToken(ctx context.Context, token string) (*AuthUser, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	if a.operatorToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.operatorToken)) == 1 {
		return &AuthUser{ID: "operator", Name: "operator", Permissions: []string{PermissionAdmin}, Enabled: true}, nil
	}
	if a.authURL == "" {
		return nil, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/users/current", a.authURL), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrUnauthorized
	}

	var user AuthUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode auth user: %w", err)
	}
	if !user.Enabled {
		return nil, ErrUserDisabled
	}
	return &user, nil
}
