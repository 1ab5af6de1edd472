package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"tipjar/crypto"
	"tipjar/observability/logging"
)

// AuthConfig configures bearer token checks on protected gateway routes.
// Tokens are the HS256 tokens minted for the JSON-RPC server.
type AuthConfig struct {
	Enabled    bool
	HMACSecret string
	Issuer     string
	ClockSkew  time.Duration
}

type contextKey string

// ContextKeyAccount holds the authenticated [20]byte account.
const ContextKeyAccount contextKey = "gateway.account"

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		logger: logger.With("component", "gateway-auth"),
		secret: []byte(strings.TrimSpace(cfg.HMACSecret)),
	}
}

func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil || !a.cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			account, err := a.parseToken(tokenString)
			if err != nil {
				a.logger.Warn("token validation failed",
					logging.MaskField("authorization", tokenString),
					slog.String("error", err.Error()))
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyAccount, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) parseToken(tokenString string) ([20]byte, error) {
	var account [20]byte
	if len(a.secret) == 0 {
		return account, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return account, err
	}
	if !token.Valid {
		return account, errors.New("token invalid")
	}
	return crypto.ParseAccount(claims.Subject)
}

// AccountFromContext returns the account authenticated by Authenticator.
func AccountFromContext(ctx context.Context) ([20]byte, bool) {
	account, ok := ctx.Value(ContextKeyAccount).([20]byte)
	return account, ok
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
