package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"moodify-server-go/internal/platform/errors"
)

// Messages shared by every route.
const (
	MsgInternalError   = "Internal server error"
	MsgNotFound        = "Not found"
	MsgPayloadTooLarge = "Request entity too large"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondError aborts the request with an error body.
func RespondError(c *gin.Context, httpStatus int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorResponse{Error: message})
}

// Result is the terminal response of a request. Stages return one to stop the
// pipeline; handlers always return one.
type Result struct {
	Status  int
	Headers map[string]string
	// Body is rendered as JSON unless Raw is set.
	Body any
	Raw  []byte
}

// JSON builds a JSON result.
func JSON(status int, body any) *Result {
	return &Result{Status: status, Body: body}
}

// RawJSON builds a result whose body is already encoded JSON.
func RawJSON(status int, payload []byte) *Result {
	return &Result{Status: status, Raw: payload}
}

// Fail builds an error result.
func Fail(status int, message string) *Result {
	return &Result{Status: status, Body: ErrorResponse{Error: message}}
}

// FromError maps err onto its status and caller-safe message. Infrastructure
// errors are answered with fallback.
func FromError(err error, fallback string) *Result {
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return Fail(status, fallback)
	}
	return Fail(status, errors.PublicMessage(err, fallback))
}

// WithHeader sets a response header on r.
func (r *Result) WithHeader(key, value string) *Result {
	if r.Headers == nil {
		r.Headers = make(map[string]string, 1)
	}
	r.Headers[key] = value
	return r
}

func (r *Result) write(c *gin.Context) {
	for k, v := range r.Headers {
		c.Header(k, v)
	}
	if r.Raw != nil {
		c.Data(r.Status, "application/json; charset=utf-8", r.Raw)
		return
	}
	c.JSON(r.Status, r.Body)
}
