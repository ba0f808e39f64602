package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"stefabooks/internal/platform/crypto"
)

// Fixture ids shared by DB and handler tests.
const (
	TestUserID  = "11111111-1111-4111-8111-111111111111"
	TestAdminID = "22222222-2222-4222-8222-222222222222"
	TestBookID  = "33333333-3333-4333-8333-333333333333"
	TestSecret  = "test-secret"
)

// GenerateTestToken generates a JWT token for testing
func GenerateTestToken(secret, userID string) string {
	token, _ := crypto.GenerateToken(secret, userID, userID+"@example.com", time.Hour)
	return token
}

// GenerateExpiredToken generates an expired JWT token for testing
func GenerateExpiredToken(secret, userID string) string {
	c := crypto.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	token, _ := t.SignedString([]byte(secret))
	return token
}

// NewRequest creates a new HTTP request for testing
func NewRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	var r *http.Request
	if bodyBytes != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(bodyBytes))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	return r
}

// NewRequestWithAuth creates a new HTTP request with JWT auth for testing
func NewRequestWithAuth(method, path string, body interface{}, token string) *http.Request {
	r := NewRequest(method, path, body)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

// RecordResponse is a decoded envelope response.
type RecordResponse struct {
	Code   int
	Header http.Header
	Body   map[string]interface{}
}

func RecordHTTPResponse(w *httptest.ResponseRecorder) RecordResponse {
	result := w.Result()
	defer result.Body.Close()

	bodyBytes, _ := io.ReadAll(result.Body)

	var bodyMap map[string]interface{}
	if len(bodyBytes) > 0 {
		_ = json.NewDecoder(bytes.NewReader(bodyBytes)).Decode(&bodyMap)
	}

	return RecordResponse{
		Code:   result.StatusCode,
		Header: result.Header,
		Body:   bodyMap,
	}
}

// ErrorCode returns error.code from an error envelope, or "".
func (r RecordResponse) ErrorCode() string {
	e, ok := r.Body["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := e["code"].(string)
	return code
}

// MigrationsDir locates db/migrations from this source file.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "migrations")
}

// NewTestDB connects to TEST_DB_DSN and applies all migrations. The test is
// skipped when the variable is unset or the database is unreachable.
func NewTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("test database unreachable: %v", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("goose dialect: %v", err)
	}
	if err := goose.Up(db, MigrationsDir()); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// ResetTables empties the domain tables between DB tests.
func ResetTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE rentals, payments, subscriptions, books, users, job_runs RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset tables: %v", err)
	}
}

// SeedUser inserts an active user with the given role.
func SeedUser(t *testing.T, pool *pgxpool.Pool, id, role string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, name, role) VALUES ($1, $2, $3, $4)`,
		id, id+"@example.com", "Test "+role, role)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

// SeedBook inserts a book with qty copies, all available.
func SeedBook(t *testing.T, pool *pgxpool.Pool, id, code string, qty int) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO books (id, code, title, author, category, age_range, qty_total, qty_available)
		 VALUES ($1, $2, $3, 'Test Author', 'Казки', '3-5', $4, $4)`,
		id, code, "Book "+code, qty)
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
}
