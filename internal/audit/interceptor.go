package audit

import "github.com/gin-gonic/gin"

// ResponseCapture wraps a gin.ResponseWriter for one request and remembers the
// first payload written through Write or WriteString together with the status
// code at that moment. Later writes pass through without being recorded. The
// wrapper is owned by a single request and needs no locking.
type ResponseCapture struct {
	gin.ResponseWriter

	captured bool
	status   int
	body     []byte
	limit    int
}

// NewResponseCapture wraps w. At most limit bytes of the payload are kept;
// limit <= 0 keeps everything.
func NewResponseCapture(w gin.ResponseWriter, limit int) *ResponseCapture {
	return &ResponseCapture{ResponseWriter: w, limit: limit}
}

func (w *ResponseCapture) capture(p []byte) {
	if w.captured {
		return
	}
	w.captured = true
	w.status = w.ResponseWriter.Status()
	n := len(p)
	if w.limit > 0 && n > w.limit {
		n = w.limit
	}
	w.body = append([]byte(nil), p[:n]...)
}

// Write records the first payload and delegates unchanged.
func (w *ResponseCapture) Write(p []byte) (int, error) {
	w.capture(p)
	return w.ResponseWriter.Write(p)
}

// WriteString records the first payload and delegates unchanged.
func (w *ResponseCapture) WriteString(s string) (int, error) {
	if !w.captured {
		w.capture([]byte(s))
	}
	return w.ResponseWriter.WriteString(s)
}

// Captured returns the recorded status and payload. When nothing was written
// through the body entry points, ok is false and status is the writer's
// current status.
func (w *ResponseCapture) Captured() (status int, body []byte, ok bool) {
	if !w.captured {
		return w.ResponseWriter.Status(), nil, false
	}
	return w.status, w.body, true
}
