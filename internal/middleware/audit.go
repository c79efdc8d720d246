// audit.go provides the Gin middleware that writes one audit record for every
// completed mutating request, with optional shipping to external destinations.
package middleware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timesheet-app/timesheet/internal/audit"
	"github.com/timesheet-app/timesheet/internal/auth"
	"github.com/timesheet-app/timesheet/internal/config"
	"github.com/timesheet-app/timesheet/internal/db/models"
	"github.com/timesheet-app/timesheet/internal/safego"
)

// AuditRecorder persists a finished audit record.
type AuditRecorder interface {
	Record(ctx context.Context, log *models.AuditLog) error
}

// AuditOptions wires the audit middleware.
type AuditOptions struct {
	Config   *config.AuditConfig
	Recorder AuditRecorder
	// Shipper receives every persisted record. Optional.
	Shipper audit.Shipper
	// Tasks tracks the asynchronous writes so shutdown can drain them. Optional.
	Tasks *safego.Group
}

// pendingAudit is the per-request state gathered before the handler runs.
type pendingAudit struct {
	action      models.AuditAction
	identity    *auth.Identity
	requestBody []byte
	capture     *audit.ResponseCapture
}

// AuditMiddleware records POST, PUT, PATCH and DELETE requests once their
// handler has finished. The record is written asynchronously; a failing
// write is logged and never affects the response.
func AuditMiddleware(opts AuditOptions) gin.HandlerFunc {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.AuditConfig{}
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	tasks := opts.Tasks
	if tasks == nil {
		tasks = &safego.Group{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skipAudit(path, cfg.SkipPaths) {
			c.Next()
			return
		}

		action, ok := audit.Classify(c.Request.Method, path)
		if !ok {
			c.Next()
			return
		}

		identity := resolveIdentity(c)
		// Login requests carry no token yet; their identity comes from the response.
		if identity == nil && cfg.RequireAuth && action != models.ActionLogin {
			c.Next()
			return
		}

		p := &pendingAudit{
			action:      action,
			identity:    identity,
			requestBody: peekBody(c.Request, cfg.MaxBodyCapture),
			capture:     audit.NewResponseCapture(c.Writer, int(cfg.MaxBodyCapture)),
		}
		c.Writer = p.capture

		completed := false
		defer func() {
			if completed {
				return
			}
			r := recover()
			if r == nil {
				return
			}
			if rec := buildAuditRecord(c, p, r); rec != nil {
				dispatch(tasks, opts, rec, RequestIDFromContext(c), writeTimeout)
			}
			panic(r)
		}()

		c.Next()
		completed = true

		// The client went away before anything was written: there is no outcome to record.
		if c.Request.Context().Err() != nil && !c.Writer.Written() {
			return
		}
		if rec := buildAuditRecord(c, p, nil); rec != nil {
			dispatch(tasks, opts, rec, RequestIDFromContext(c), writeTimeout)
		}
	}
}

// skipAudit reports whether path falls under one of the skip prefixes.
func skipAudit(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// peekBody reads up to limit bytes of the request body and puts them back in
// front of the unread remainder. It returns nil when the body is larger than
// limit, so a truncated document is never parsed.
func peekBody(req *http.Request, limit int64) []byte {
	if req.Body == nil || req.Body == http.NoBody || limit <= 0 {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(req.Body, limit+1))
	req.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(buf), req.Body), Closer: req.Body}
	if err != nil || int64(len(buf)) > limit {
		return nil
	}
	return buf
}

type readCloser struct {
	io.Reader
	io.Closer
}

// buildAuditRecord assembles the record for a finished request. panicValue is
// non-nil when the handler panicked. It never panics itself.
func buildAuditRecord(c *gin.Context, p *pendingAudit, panicValue interface{}) (rec *models.AuditLog) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("audit: failed to build record", "panic", r, "path", c.Request.URL.Path)
			rec = nil
		}
	}()

	statusCode, body, _ := p.capture.Captured()
	status := models.StatusSuccess
	var errMsg *string
	switch {
	case panicValue != nil:
		status = models.StatusError
		msg := fmt.Sprintf("panic: %v", panicValue)
		errMsg = &msg
		statusCode = http.StatusInternalServerError
	case statusCode >= http.StatusBadRequest:
		status = models.StatusFailure
		msg := audit.CleanText(body)
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		errMsg = &msg
	}

	rec = &models.AuditLog{
		UserEmail:    models.AnonymousEmail,
		Action:       p.action,
		Resource:     audit.ResourceFromPath(c.Request.URL.Path),
		Method:       c.Request.Method,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		Status:       status,
		ErrorMessage: errMsg,
	}

	switch {
	case p.identity != nil:
		applyIdentity(rec, p.identity.UserID, p.identity.Email, p.identity.Name)
		if p.identity.SessionID != "" {
			sid := p.identity.SessionID
			rec.SessionID = &sid
		}
	case p.action == models.ActionLogin || p.action == models.ActionLogout:
		if id := audit.IdentityFromBody(body); id != nil {
			applyIdentity(rec, id.UserID, id.Email, id.Name)
		}
	}

	if id := c.Param("id"); id != "" {
		rec.ResourceID = &id
	} else if id := audit.ResourceIDFromPath(c.Request.URL.Path); id != nil {
		rec.ResourceID = id
	} else if id := audit.ResourceIDFromBody(p.requestBody); id != nil {
		rec.ResourceID = id
	} else if status == models.StatusSuccess {
		rec.ResourceID = audit.ResourceIDFromBody(body)
	}

	rec.Message = audit.Synthesize(audit.MessageInput{
		Action:    rec.Action,
		Resource:  rec.Resource,
		UserEmail: rec.UserEmail,
		UserName:  rec.UserName,
		Status:    rec.Status,
		Body:      body,
	})
	return rec
}

func applyIdentity(rec *models.AuditLog, userID, email, name string) {
	if userID != "" {
		rec.UserID = &userID
	}
	if email != "" {
		rec.UserEmail = email
	}
	rec.UserName = name
}

// dispatch persists rec in the background and then hands it to the shipper.
func dispatch(tasks *safego.Group, opts AuditOptions, rec *models.AuditLog, requestID string, timeout time.Duration) {
	tasks.Go("audit-write", func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if opts.Recorder != nil {
			if err := opts.Recorder.Record(ctx, rec); err != nil {
				slog.Error("audit: failed to persist record",
					"error", err,
					"request_id", requestID,
					"action", rec.Action,
					"resource", rec.Resource,
					"status", rec.Status)
				return
			}
		}

		if opts.Shipper != nil {
			if err := opts.Shipper.Ship(ctx, rec); err != nil {
				slog.Warn("audit: failed to ship record", "error", err, "request_id", requestID, "record_id", rec.ID)
			}
		}
	})
}
