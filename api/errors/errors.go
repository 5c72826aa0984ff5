package errors

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	pkgerrors "github.com/pkg/errors"

	governor_errors "github.com/customeros/mailgovernor/internal/errors"
	"github.com/customeros/mailgovernor/internal/tracing"
)

// RetryAfterSeconds is advertised to callers when no sending account has room.
const RetryAfterSeconds = "60"

type MultiErrors struct {
	Errors map[string][]ErrorInfo
}

type ErrorInfo struct {
	Message  string
	RawError error
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(key, message string, err error) {
	e.Errors[key] = append(e.Errors[key], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *MultiErrors) Error() string {
	var parts []string
	for _, field := range e.keys() {
		for _, err := range e.Errors[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, err.Message))
		}
	}
	return strings.Join(parts, " | ")
}

// Fields returns the messages per field, for response bodies.
func (e *MultiErrors) Fields() map[string][]string {
	fields := make(map[string][]string, len(e.Errors))
	for field, infos := range e.Errors {
		for _, info := range infos {
			fields[field] = append(fields[field], info.Message)
		}
	}
	return fields
}

func (e *MultiErrors) keys() []string {
	keys := make([]string, 0, len(e.Errors))
	for key := range e.Errors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// StatusOf maps the governor error kinds to HTTP status codes.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case governor_errors.IsValidation(err):
		return http.StatusBadRequest
	case governor_errors.IsNotFound(err):
		return http.StatusNotFound
	case governor_errors.IsConflict(err):
		return http.StatusConflict
	case governor_errors.IsExhaustion(err):
		return http.StatusTooManyRequests
	case governor_errors.IsPersistence(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err with the status of its kind and records it on the span.
func Respond(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)

	status := StatusOf(err)
	body := gin.H{"error": err.Error()}
	switch status {
	case http.StatusBadRequest:
		var validation *governor_errors.ValidationError
		if pkgerrors.As(err, &validation) && validation.Field != "" {
			body["field"] = validation.Field
		}
	case http.StatusTooManyRequests:
		c.Header("Retry-After", RetryAfterSeconds)
	case http.StatusServiceUnavailable:
		body["error"] = "storage unavailable"
	case http.StatusInternalServerError:
		body["error"] = "internal error"
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// RespondInvalid writes request validation failures as a 400.
func RespondInvalid(c *gin.Context, span opentracing.Span, errs *MultiErrors) {
	tracing.TraceErr(span, errs)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errs.Error(), "fields": errs.Fields()})
}

// RespondBadRequest is for bodies that could not be decoded at all.
func RespondBadRequest(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
}
