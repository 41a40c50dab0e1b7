package utils

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const UserIDKey contextKey = "userID"

const (
	SessionCookie = "session"
	LoginURL      = "/auth/login/"
)

var ErrInvalidToken = errors.New("invalid token")

func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext returns the authenticated viewer, if any.
func GetUserIDFromContext(ctx context.Context) (uint, bool) {
	userID, ok := ctx.Value(UserIDKey).(uint)
	return userID, ok
}

// UserLookup reports whether the account behind a token still exists.
type UserLookup func(ctx context.Context, userID uint) (bool, error)

// Authenticator issues and checks the HS256 session tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	lookup UserLookup
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// WithUserLookup makes Middleware confirm the account on every request, so tokens of
// deleted users stop authenticating before they expire.
func (a *Authenticator) WithUserLookup(lookup UserLookup) *Authenticator {
	a.lookup = lookup
	return a
}

func (a *Authenticator) GenerateToken(userID uint) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(a.ttl)
	claims := &jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	return signed, expiresAt, err
}

func (a *Authenticator) ParseToken(tokenString string) (uint, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return uint(userID), nil
}

// StartSession issues a token for userID and stores it in the session cookie.
func (a *Authenticator) StartSession(w http.ResponseWriter, userID uint) (string, error) {
	token, expiresAt, err := a.GenerateToken(userID)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func EndSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Middleware resolves the viewer from the session cookie or a Bearer header.
// Requests without a valid token, or whose account is gone, pass through
// anonymously.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := a.ParseToken(tokenString)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if a.lookup != nil {
			exists, err := a.lookup(r.Context(), userID)
			if err != nil {
				Logger(r.Context()).Error("Failed to load session user", "user_id", userID, "error", err)
				ServerError(w, r)
				return
			}
			if !exists {
				EndSession(w)
				next.ServeHTTP(w, r)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func tokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// LoginRequired sends anonymous requests to the login page, keeping the requested
// destination in the next parameter.
func LoginRequired(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUserIDFromContext(r.Context()); !ok {
			http.Redirect(w, r, LoginRedirectURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next(w, r)
	}
}

func LoginRedirectURL(next string) string {
	return LoginURL + "?" + url.Values{"next": {next}}.Encode()
}
