package httpx

import (
	"net/http"

	"github.com/google/uuid"

	"stefabooks/internal/apperr"
)

// PathID returns the {id} path value. Ids are UUIDs, so a malformed one
// names nothing and is answered with 404 before any store lookup.
func PathID(w http.ResponseWriter, r *http.Request, resource string) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		WriteError(w, r, apperr.NotFound(resource+" not found"))
		return "", false
	}
	return id, true
}
