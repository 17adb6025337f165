package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"expensync/internal/core"
	applog "expensync/internal/log"
	"expensync/internal/photos"
)

// ResponseBuilder writes JSON responses with a fluent API.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{statusCode: http.StatusOK, headers: make(map[string]string)}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// ErrorResponse builds a {"error": message} response.
func ErrorResponse(statusCode int, message string, fields ...FieldError) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message, Fields: fields})
}

// errBadRequest marks bodies that could not be decoded.
var errBadRequest = errors.New("malformed request")

// statusFor maps an error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	var verrs ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity, "validation failed"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, photos.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "photo is too large"
	case errors.Is(err, photos.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "photo must be a JPEG, PNG or WebP image"
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "already exists"
	case errors.Is(err, core.ErrUnavailable):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError maps err to a status code and writes it. Server errors are
// logged with the request logger; their details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
	}

	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		ErrorResponse(status, msg, verrs...).Write(w)
		return
	}
	ErrorResponse(status, msg).Write(w)
}
