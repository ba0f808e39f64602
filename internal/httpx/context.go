package httpx

import (
	"context"
	"net/http"

	"stefabooks/internal/access"
)

type contextKey string

const (
	subjectKey   contextKey = "subject"
	requestIDKey contextKey = "requestID"
)

// UserIDFrom retrieves the authenticated user ID from the request context.
func UserIDFrom(r *http.Request) string {
	return SubjectFrom(r).UserID
}

// RoleFrom retrieves the authenticated user's role from the request context.
func RoleFrom(r *http.Request) access.Role {
	return SubjectFrom(r).Role
}

// SubjectFrom returns the subject stored by AuthMiddleware, or the zero value.
func SubjectFrom(r *http.Request) access.Subject {
	if v, ok := r.Context().Value(subjectKey).(access.Subject); ok {
		return v
	}
	return access.Subject{}
}

// ContextWithSubject returns a new context carrying the authenticated subject.
func ContextWithSubject(ctx context.Context, s access.Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

func RequestIDFrom(r *http.Request) string {
	if v, ok := r.Context().Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// subjectHolder lets outer middleware observe the subject resolved by
// AuthMiddleware, which only sees a derived request.
type subjectHolder struct {
	userID string
}

const subjectHolderKey contextKey = "subjectHolder"

func withSubjectHolder(ctx context.Context, h *subjectHolder) context.Context {
	return context.WithValue(ctx, subjectHolderKey, h)
}

func recordSubject(ctx context.Context, s access.Subject) {
	if h, ok := ctx.Value(subjectHolderKey).(*subjectHolder); ok {
		h.userID = s.UserID
	}
}
