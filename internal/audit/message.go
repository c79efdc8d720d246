package audit

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/timesheet-app/timesheet/internal/db/models"
)

// MessageInput is everything Synthesize looks at.
type MessageInput struct {
	Action    models.AuditAction
	Resource  string
	UserEmail string
	UserName  string
	Status    models.AuditStatus
	// Body is the captured response payload; it may be empty or not JSON.
	Body []byte
}

var pastTense = map[models.AuditAction]string{
	models.ActionCreate: "created",
	models.ActionUpdate: "updated",
	models.ActionDelete: "deleted",
}

// Synthesize builds the human-readable message stored with a record. It is a
// pure function of its input.
func Synthesize(in MessageInput) string {
	who := identifier(in.UserName, in.UserEmail)
	resource := capitalize(in.Resource)

	if in.Status == models.StatusFailure || in.Status == models.StatusError {
		return fmt.Sprintf("Failed to %s %s by %s", strings.ToLower(string(in.Action)), resource, who)
	}

	body := object(in.Body)
	if msg, ok := body["message"].(string); ok && msg != "" {
		return msg
	}
	success, _ := body["success"].(bool)

	suffix := ""
	if success {
		suffix = " successfully"
	}

	switch in.Action {
	case models.ActionLogin:
		return fmt.Sprintf("User %s logged in%s", who, suffix)
	case models.ActionLogout:
		return fmt.Sprintf("User %s logged out%s", who, suffix)
	case models.ActionCreate, models.ActionUpdate, models.ActionDelete:
		if success {
			return fmt.Sprintf("%s %s successfully by %s", resource, pastTense[in.Action], who)
		}
		return fmt.Sprintf("%s %s by %s", resource, pastTense[in.Action], who)
	default:
		return fmt.Sprintf("%s action performed by %s", resource, who)
	}
}

func identifier(name, email string) string {
	if name != "" {
		return fmt.Sprintf("%s (%s)", name, email)
	}
	return email
}

func capitalize(s string) string {
	if s == "" {
		return capitalize(UnknownResource)
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
