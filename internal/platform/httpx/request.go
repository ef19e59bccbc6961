package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/harborline/ibs/internal/shared"
)

// DateLayout is the calendar date format accepted in requests.
const DateLayout = "2006-01-02"

// RequireActor returns the authenticated actor or writes a 401.
func RequireActor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		RespondError(w, shared.ErrUnauthenticated)
		return shared.Actor{}, false
	}
	return actor, true
}

// RequireCompany reads the company query parameter or writes a 400.
func RequireCompany(w http.ResponseWriter, r *http.Request) (string, bool) {
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	if company == "" {
		Problem(w, http.StatusBadRequest, "Invalid Query", "company is required")
		return "", false
	}
	return company, true
}

// QueryDate parses an optional YYYY-MM-DD query parameter.
func QueryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, raw)
}

// QueryLimit parses the limit query parameter, falling back to def.
func QueryLimit(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

// TransitionRequest is the body of post, void and cancel calls.
type TransitionRequest struct {
	Company string `json:"company" validate:"required"`
	Version int64  `json:"version" validate:"gte=0"`
	Reason  string `json:"reason" validate:"max=500"`
}
