package task

import (
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jzx17/taskserve/pkg/config"
)

// Channel is the connection a task writes its response to. Header block
// and body chunks are written in order by a single task at a time.
type Channel interface {
	Write(p []byte) (int, error)
	Addr() net.Addr
	Server() Server
}

// Server describes the listening server a channel belongs to
type Server interface {
	Application() Application
	EffectivePort() int
	ServerName() string
	Adjustments() *config.Adjustments
	Logger() *zap.Logger
}

// BasicServer is a static Server implementation
type BasicServer struct {
	App  Application
	Port int
	Name string
	Adj  *config.Adjustments
	Log  *zap.Logger
}

// Application returns the downstream application
func (s *BasicServer) Application() Application { return s.App }

// EffectivePort returns the port the server is reachable on
func (s *BasicServer) EffectivePort() int { return s.Port }

// ServerName returns the host name reported to applications
func (s *BasicServer) ServerName() string { return s.Name }

// Adjustments returns the server settings, falling back to the defaults
func (s *BasicServer) Adjustments() *config.Adjustments {
	if s.Adj == nil {
		return config.DefaultAdjustments()
	}
	return s.Adj
}

// Logger returns the server logger, or a no-op logger
func (s *BasicServer) Logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Request is a parsed HTTP request handed to a task
type Request struct {
	// Version is the HTTP version without the "HTTP/" prefix
	Version string

	// Command is the request method
	Command string

	// Path is the request path, possibly percent-encoded
	Path string

	// Query is the raw query string without the leading '?'
	Query string

	// URLScheme is "http" or "https"
	URLScheme string

	// Headers maps header names to their (joined) values
	Headers map[string]string

	// Body is the request entity; nil means empty
	Body io.Reader

	// Error is set for requests that could not be parsed
	Error *RequestError
}

// Header returns the value of the named request header. Names are matched
// ignoring case and treating '-' and '_' alike.
func (r *Request) Header(name string) string {
	want := headerKey(name)
	if v, ok := r.Headers[want]; ok {
		return v
	}
	for k, v := range r.Headers {
		if headerKey(k) == want {
			return v
		}
	}
	return ""
}

// BodyStream returns a reader over the request entity
func (r *Request) BodyStream() io.Reader {
	if r.Body == nil {
		return http.NoBody
	}
	return r.Body
}

// headerKey normalizes a header name to its environment form, e.g.
// "Content-Type" to "CONTENT_TYPE"
func headerKey(name string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "_")
}

// RequestError describes a request that is answered with an error response
type RequestError struct {
	Code   int
	Reason string
	Body   string
}

// Error implements the error interface
func (e *RequestError) Error() string {
	return e.Reason + ": " + e.Body
}

func newRequestError(code int, body string) *RequestError {
	return &RequestError{Code: code, Reason: http.StatusText(code), Body: body}
}

// BadRequest is returned for malformed requests
func BadRequest(body string) *RequestError {
	return newRequestError(http.StatusBadRequest, body)
}

// RequestTimeout is returned when the client is too slow
func RequestTimeout(body string) *RequestError {
	return newRequestError(http.StatusRequestTimeout, body)
}

// RequestEntityTooLarge is returned when the body exceeds the configured limit
func RequestEntityTooLarge(body string) *RequestError {
	return newRequestError(http.StatusRequestEntityTooLarge, body)
}

// RequestHeaderFieldsTooLarge is returned when the head exceeds the configured limit
func RequestHeaderFieldsTooLarge(body string) *RequestError {
	return newRequestError(http.StatusRequestHeaderFieldsTooLarge, body)
}

// InternalServerError is returned when the application fails before
// committing headers
func InternalServerError(body string) *RequestError {
	return newRequestError(http.StatusInternalServerError, body)
}
