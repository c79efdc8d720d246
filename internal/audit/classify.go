package audit

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/timesheet-app/timesheet/internal/db/models"
)

// UnknownResource is recorded when no resource can be derived from the path.
const UnknownResource = "unknown"

var methodActions = map[string]models.AuditAction{
	http.MethodPost:   models.ActionCreate,
	http.MethodPut:    models.ActionUpdate,
	http.MethodPatch:  models.ActionUpdate,
	http.MethodDelete: models.ActionDelete,
}

var apiVersionSegment = regexp.MustCompile(`^v[0-9]+$`)

// Classify maps a request to its audit action. ok is false for verbs that are
// never audited (GET, HEAD, OPTIONS and anything unmapped).
//
// A POST whose final path segment is "login" or "logout" is classified as
// LOGIN or LOGOUT instead of CREATE.
func Classify(method, path string) (action models.AuditAction, ok bool) {
	action, ok = methodActions[strings.ToUpper(method)]
	if !ok {
		return "", false
	}
	if action == models.ActionCreate {
		switch strings.ToLower(lastSegment(path)) {
		case "login":
			return models.ActionLogin, true
		case "logout":
			return models.ActionLogout, true
		}
	}
	return action, true
}

// ResourceFromPath returns the lowercase resource noun of a request path: the
// segment after "api" when present, otherwise the first segment. A version
// segment such as "v1" directly after "api" is skipped.
func ResourceFromPath(path string) string {
	segs := segments(path)
	i := resourceIndex(segs)
	if i >= len(segs) {
		return UnknownResource
	}
	return strings.ToLower(segs[i])
}

// ResourceIDFromPath returns the segment directly after the resource noun when
// it looks like an identifier, so /api/projects/65f1c0ffee0000000000abcd
// yields the ObjectID while /api/projects/archive yields nil.
func ResourceIDFromPath(path string) *string {
	segs := segments(path)
	i := resourceIndex(segs) + 1
	if i >= len(segs) || !models.IsEntityID(segs[i]) {
		return nil
	}
	id := segs[i]
	return &id
}

// resourceIndex is the position of the resource noun in segs. It may equal
// len(segs) when the path ends at "api" or its version.
func resourceIndex(segs []string) int {
	for i, s := range segs {
		if !strings.EqualFold(s, "api") {
			continue
		}
		next := i + 1
		if next < len(segs) && apiVersionSegment.MatchString(strings.ToLower(segs[next])) {
			next++
		}
		return next
	}
	return 0
}

func segments(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func lastSegment(path string) string {
	segs := segments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
