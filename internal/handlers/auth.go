package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stanstork/bulkgen/internal/authz"
	"github.com/stanstork/bulkgen/internal/config"
)

type AuthHandler struct {
	admin     config.AdminConfig
	jwtSecret string
	nonces    *authz.Nonces
	logger    zerolog.Logger
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func NewAuthHandler(cfg *config.Config, nonces *authz.Nonces, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		admin:     cfg.Admin,
		jwtSecret: cfg.JWTSecret,
		nonces:    nonces,
		logger:    logger.With().Str("handler", "auth").Logger(),
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if h.admin.PasswordHash == "" || req.Username != h.admin.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(req.Password)) != nil {
		h.logger.Warn().Str("username", req.Username).Msg("login rejected")
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  req.Username,
		"caps": []string{authz.ManageStore},
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		http.Error(w, "Failed to generate token: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

// Nonces hands the caller one anti-forgery nonce per action family.
func (h *AuthHandler) Nonces(w http.ResponseWriter, r *http.Request) {
	subject, ok := authz.SubjectFromRequest(r)
	if !ok {
		http.Error(w, "Missing subject", http.StatusUnauthorized)
		return
	}
	nonces, err := h.nonces.IssueAll(subject)
	if err != nil {
		http.Error(w, "Failed to issue nonces: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonces)
}

func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
			http.Error(w, "Token expired", http.StatusUnauthorized)
			return
		}
		subject, _ := claims["sub"].(string)
		ctx := authz.WithIdentity(r.Context(), subject, capabilitiesFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func capabilitiesFromClaims(claims jwt.MapClaims) []string {
	var caps []string
	switch v := claims["caps"].(type) {
	case []interface{}:
		for _, val := range v {
			if s, ok := val.(string); ok {
				caps = append(caps, s)
			}
		}
	case string:
		caps = strings.Fields(v)
	}
	return caps
}
