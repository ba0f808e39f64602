package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"stefabooks/internal/access"
	"stefabooks/internal/platform/crypto"
)

// ErrUnknownSubject is returned by a SubjectLoader when the token's user does
// not exist in the users table.
var ErrUnknownSubject = errors.New("unknown subject")

// SubjectLoader resolves the role and status of a token subject.
type SubjectLoader interface {
	LoadSubject(ctx context.Context, userID string) (access.Subject, error)
}

// AuthMiddleware requires a valid bearer token and stores the subject, as
// loaded by loader, in the request context.
func AuthMiddleware(secret string, loader SubjectLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := crypto.ParseToken(secret, token)
			if err != nil {
				JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", nil)
				return
			}

			subject, err := loader.LoadSubject(r.Context(), claims.Subject)
			if errors.Is(err, ErrUnknownSubject) {
				JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "unknown user", nil)
				return
			}
			if err != nil {
				WriteError(w, r, err)
				return
			}

			recordSubject(r.Context(), subject)
			ctx := ContextWithSubject(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects subjects that do not hold c. It must run after AuthMiddleware.
func RequireCapability(c access.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := access.Resolve(SubjectFrom(r), c)
			if !d.Allowed {
				JSONError(w, r, http.StatusForbidden, "FORBIDDEN", d.Reason, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InternalSecretMiddleware guards internal endpoints with the X-Internal-Secret header.
func InternalSecretMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Internal-Secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid internal secret", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
