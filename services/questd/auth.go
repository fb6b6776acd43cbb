package questd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"questvault/crypto"
)

// AuthConfig controls bearer token verification. The caller identity is the
// bech32 address carried in the token subject.
type AuthConfig struct {
	HMACSecret []byte
	Issuer     string
	Audience   string
	ClockSkew  time.Duration
}

type contextKey string

const contextKeyCaller contextKey = "questd.caller"

var (
	errUnauthenticated = errors.New("questd: unauthenticated")
	errNoSecret        = errors.New("auth secret not configured")
)

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger}
}

// Middleware rejects requests without a valid token and stores the caller in
// the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			writeError(w, fmt.Errorf("%w: missing bearer token", errUnauthenticated))
			return
		}
		caller, err := a.Caller(tokenString)
		if err != nil {
			a.logger.Debug("auth: token rejected", slog.String("route", r.URL.Path), slog.Any("error", err))
			writeError(w, fmt.Errorf("%w: invalid token", errUnauthenticated))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKeyCaller, caller)))
	})
}

// Caller validates tokenString and returns the subject address.
func (a *Authenticator) Caller(tokenString string) ([20]byte, error) {
	if len(a.cfg.HMACSecret) == 0 {
		return [20]byte{}, errNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return a.cfg.HMACSecret, nil
	}, opts...)
	if err != nil {
		return [20]byte{}, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return [20]byte{}, errors.New("token invalid")
	}
	caller, err := crypto.ParseAddress(claims.Subject)
	if err != nil {
		return [20]byte{}, fmt.Errorf("subject: %w", err)
	}
	if caller == ([20]byte{}) {
		return [20]byte{}, errors.New("subject: zero address")
	}
	return caller, nil
}

// IssueToken signs a token for subject. Operator tooling and tests use it.
func IssueToken(cfg AuthConfig, subject [20]byte, ttl time.Duration) (string, error) {
	if len(cfg.HMACSecret) == 0 {
		return "", errNoSecret
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   crypto.Format(subject),
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.HMACSecret)
}

// CallerFrom returns the authenticated caller of the request.
func CallerFrom(ctx context.Context) ([20]byte, bool) {
	caller, ok := ctx.Value(contextKeyCaller).([20]byte)
	return caller, ok
}

func extractBearer(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
