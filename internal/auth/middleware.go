// Package auth validates bearer tokens on the HTTP and WebSocket surfaces.
// Tokens are verified against a JWKS endpoint or a shared HMAC secret;
// with neither configured, authentication is disabled.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var ErrMissingToken = errors.New("missing token")

// Config selects how tokens are verified
type Config struct {
	Secret  string // HMAC secret, used when JWKSURL is empty
	JWKSURL string
	Issuer  string // required iss claim when set
}

// Enabled reports whether any verification key is configured
func (c Config) Enabled() bool {
	return c.Secret != "" || c.JWKSURL != ""
}

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

type contextKey string

const UserContextKey contextKey = "user"

// Validator verifies tokens and guards handlers
type Validator struct {
	keyfunc jwt.Keyfunc
	methods []string
	issuer  string
	logger  zerolog.Logger
}

// NewValidator builds a validator from cfg. A disabled config yields a
// validator that lets every request through.
func NewValidator(cfg Config, logger zerolog.Logger) (*Validator, error) {
	v := &Validator{
		issuer: cfg.Issuer,
		logger: logger.With().Str("component", "auth").Logger(),
	}

	switch {
	case cfg.JWKSURL != "":
		k, err := keyfunc.NewDefault([]string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create keyfunc: %w", err)
		}
		v.keyfunc = k.Keyfunc
		v.methods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}
		v.logger.Info().Str("jwks_url", cfg.JWKSURL).Msg("verifying tokens against JWKS")

	case cfg.Secret != "":
		secret := []byte(cfg.Secret)
		v.keyfunc = func(*jwt.Token) (any, error) { return secret, nil }
		v.methods = []string{"HS256", "HS384", "HS512"}
		v.logger.Info().Msg("verifying tokens with shared secret")

	default:
		v.logger.Warn().Msg("authentication disabled")
	}
	return v, nil
}

// Enabled reports whether requests are checked
func (v *Validator) Enabled() bool {
	return v != nil && v.keyfunc != nil
}

// Validate parses and verifies a token
func (v *Validator) Validate(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods(v.methods)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Authenticate checks the request's token. It returns nil claims and no
// error when authentication is disabled.
func (v *Validator) Authenticate(r *http.Request) (*Claims, error) {
	if !v.Enabled() {
		return nil, nil
	}
	tokenString := ExtractToken(r)
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	return v.Validate(tokenString)
}

// Middleware rejects requests without a valid token
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Enabled() || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := v.Authenticate(r)
		if err != nil {
			v.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("request rejected")
			http.Error(w, fmt.Sprintf("Unauthorized: %v", err), http.StatusUnauthorized)
			return
		}

		v.logger.Debug().Str("subject", claims.Subject).Str("email", claims.Email).Msg("user authenticated")
		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractToken gets the token from the Authorization header or, for
// WebSocket connections, the token query parameter
func ExtractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString != authHeader {
			return tokenString
		}
	}
	return r.URL.Query().Get("token")
}

// GetUserFromContext retrieves user claims from request context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}
