package rpc

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"tipjar/crypto"
	"tipjar/observability/logging"
)

// TokenIssuer is the iss claim of caller tokens.
const TokenIssuer = "tipjar"

const tokenClockSkew = 2 * time.Minute

// IssueToken mints an HS256 caller token whose subject is the bech32 address
// of account.
func IssueToken(secret string, account [20]byte, ttl time.Duration) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("rpc: jwt secret required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   TokenIssuer,
		Subject:  crypto.FormatAccount(account),
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func (s *Server) parseToken(tokenString string) ([20]byte, error) {
	var zero [20]byte
	if len(s.jwtSecret) == 0 {
		return zero, errors.New("auth secret not configured")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithLeeway(tokenClockSkew), jwt.WithIssuer(TokenIssuer))
	if err != nil {
		return zero, err
	}
	if !token.Valid {
		return zero, errors.New("token invalid")
	}
	account, err := crypto.ParseAccount(claims.Subject)
	if err != nil {
		return zero, fmt.Errorf("token subject: %w", err)
	}
	return account, nil
}

// authenticate resolves the caller of a mutating request. A bearer token wins;
// the fallback caller parameter is honoured only when insecure callers are
// enabled.
func (s *Server) authenticate(r *http.Request, fallback string) ([20]byte, *RPCError) {
	var zero [20]byte
	if tokenString := extractBearer(r.Header.Get("Authorization")); tokenString != "" {
		account, err := s.parseToken(tokenString)
		if err != nil {
			s.logger.Warn("token validation failed",
				logging.MaskField("authorization", tokenString),
				slog.String("error", err.Error()))
			return zero, &RPCError{Code: codeUnauthorized, Message: "invalid caller token"}
		}
		return account, nil
	}
	if s.allowInsecureCaller && strings.TrimSpace(fallback) != "" {
		account, err := crypto.ParseAccount(fallback)
		if err != nil {
			return zero, &RPCError{Code: codeInvalidParams, Message: "invalid caller address", Data: err.Error()}
		}
		return account, nil
	}
	return zero, &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
}
