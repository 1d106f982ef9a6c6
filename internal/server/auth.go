package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/andresedu1996/agenda-backend/internal/middleware"
	apperrors "github.com/andresedu1996/agenda-backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type tokenRequest struct {
	Secret string `json:"secret"`
	Name   string `json:"name"`
}

// IssueToken handles POST /api/v1/auth/token: exchanges the admin secret
// for a staff JWT.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.ErrInvalidInput.WithError(err))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.cfg.Auth.AdminSecret)) != 1 {
		respondError(c, apperrors.ErrUnauthorized)
		return
	}

	now := time.Now()
	claims := middleware.Claims{
		Subject: req.Name,
		Role:    middleware.RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.cfg.Auth.TokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.Auth.JWTSecret))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": claims.ExpiresAt.Format(time.RFC3339),
	})
}
