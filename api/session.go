package api

import (
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"weekplan-api/domain"
	"weekplan-api/storage"
)

const minPasswordLen = 8

// Sessions issues HS256 session tokens for registered users. Tokens are
// verified by an Auth configured with the same secret.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewSessions creates a session issuer.
func NewSessions(secret []byte, ttl time.Duration, issuer string) *Sessions {
	if len(secret) == 0 {
		panic("api.NewSessions: secret is required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Sessions{secret: secret, ttl: ttl, issuer: issuer}
}

// Issue returns a signed session token for the given user id.
func (s *Sessions) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validCredentials(email, password string) string {
	if email == "" {
		return "email is required"
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "invalid email"
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return "password must be at least 8 characters"
	}
	return ""
}

func decodeCredentials(c echo.Context) (credentialsRequest, bool) {
	lr := io.LimitReader(c.Request().Body, authMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()

	var req credentialsRequest
	if err := dec.Decode(&req); err != nil {
		return credentialsRequest{}, false
	}
	req.Email = normalizeEmail(req.Email)
	return req, true
}

func registerUser(store Storage, sessions *Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		req, ok := decodeCredentials(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if msg := validCredentials(req.Email, req.Password); msg != "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}

		user := domain.User{
			ID:           uuid.NewString(),
			Email:        req.Email,
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.CreateUser(c.Request().Context(), user); err != nil {
			return storeError(c, err)
		}

		token, err := sessions.Issue(user.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return c.JSON(http.StatusCreated, sessionResponse{Token: token, UserID: user.ID})
	}
}

func loginUser(store Storage, sessions *Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		req, ok := decodeCredentials(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		// Login failures carry no detail about which part was wrong. A
		// backend fault is not a credential failure and surfaces as 500.
		user, err := store.UserByEmail(c.Request().Context(), req.Email)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
			}
			return storeError(c, err)
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		}

		token, err := sessions.Issue(user.ID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return c.JSON(http.StatusOK, sessionResponse{Token: token, UserID: user.ID})
	}
}
