package task

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/http/httpguts"

	"github.com/jzx17/taskserve/pkg/types"
)

// WriteFunc writes body bytes directly, bypassing the returned Body
type WriteFunc func(data []byte) error

// StartResponse commits the status and headers. A non-nil excInfo
// reports an error raised while producing the response; it allows a
// second call to replace headers that have not been sent yet.
type StartResponse func(status string, headers Headers, excInfo error) (WriteFunc, error)

// Application is the downstream callable a request is bridged to
type Application interface {
	Serve(environ Environ, start StartResponse) (Body, error)
}

// ApplicationFunc adapts a function to Application
type ApplicationFunc func(environ Environ, start StartResponse) (Body, error)

// Serve calls f
func (f ApplicationFunc) Serve(environ Environ, start StartResponse) (Body, error) {
	return f(environ, start)
}

// hopByHop headers are owned by the server; Connection and
// Transfer-Encoding are left to the application because they drive
// persistence
var hopByHop = map[string]bool{
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"upgrade":             true,
}

// AppTask bridges a request into the server's Application and streams
// the body it produces
type AppTask struct {
	*Task

	environ Environ
}

// NewAppTask creates a task invoking the channel server's application
func NewAppTask(channel Channel, request *Request, opts ...Option) *AppTask {
	return &AppTask{Task: newTask(channel, request, opts...)}
}

// Service invokes the application and writes its response
func (t *AppTask) Service() error {
	return t.service(t.Execute)
}

// Environ returns the environment, building it on first use
func (t *AppTask) Environ() Environ {
	if t.environ == nil {
		t.environ = buildEnviron(t.Task)
	}
	return t.environ
}

// Execute invokes the application and iterates its body, writing every
// non-empty chunk as soon as it is produced
func (t *AppTask) Execute() (err error) {
	app := t.server.Application()
	if app == nil {
		return fmt.Errorf("server has no application")
	}

	body, err := app.Serve(t.Environ(), t.startResponse)
	if closer, ok := body.(io.Closer); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing response body: %w", cerr)
			}
		}()
	}
	if err != nil {
		return err
	}
	if body == nil {
		return nil
	}

	first := true
	for {
		chunk, nerr := body.Next()
		if errors.Is(nerr, io.EOF) {
			break
		}
		if nerr != nil {
			return nerr
		}

		if first {
			first = false
			// a single-chunk body gets a validated length for free
			if t.contentLength == unsetLength {
				if l, ok := body.(Lengther); ok && l.Len() == 1 {
					t.contentLength = int64(len(chunk))
				}
			}
		}
		if len(chunk) == 0 {
			continue
		}
		if err := t.Write(chunk); err != nil {
			return err
		}
	}

	if t.contentLength != unsetLength && t.bodyBytesProduced != t.contentLength {
		// the client would wait for bytes that never come, or read
		// truncated ones as the start of the next response
		t.closeOnFinish = true
		if t.request.Command != "HEAD" {
			t.logger.Warn("Application returned a body length that does not match its Content-Length header",
				zap.Int64("content_length", t.contentLength),
				zap.Int64("produced", t.bodyBytesProduced))
		}
	}

	return nil
}

func (t *AppTask) startResponse(status string, headers Headers, excInfo error) (WriteFunc, error) {
	if t.complete && excInfo == nil {
		return nil, types.ErrStartResponseTwice
	}
	if excInfo != nil {
		if t.wroteHeader {
			return nil, excInfo
		}
	}

	if err := validateStatus(status); err != nil {
		return nil, err
	}

	contentLength := int64(unsetLength)
	for _, h := range headers {
		if err := validateHeader(h); err != nil {
			return nil, err
		}
		if strings.EqualFold(h.Name, "Content-Length") {
			n, err := strconv.ParseInt(strings.TrimSpace(h.Value), 10, 64)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: bad Content-Length %q", types.ErrInvalidHeader, h.Value)
			}
			contentLength = n
		}
	}

	if excInfo != nil {
		// staged headers from the failed attempt are discarded
		t.responseHeaders = nil
		t.contentLength = unsetLength
	}
	if contentLength != unsetLength {
		t.contentLength = contentLength
	}

	t.complete = true
	t.status = status
	t.responseHeaders = append(t.responseHeaders, headers...)

	return t.Write, nil
}

func validateStatus(status string) error {
	if len(status) < 3 {
		return fmt.Errorf("%w: status %q is too short", types.ErrInvalidHeader, status)
	}
	for i := 0; i < 3; i++ {
		if status[i] < '0' || status[i] > '9' {
			return fmt.Errorf("%w: status %q does not start with a code", types.ErrInvalidHeader, status)
		}
	}
	if len(status) > 3 && status[3] != ' ' {
		return fmt.Errorf("%w: status %q", types.ErrInvalidHeader, status)
	}
	if strings.ContainsAny(status, "\r\n") || !httpguts.ValidHeaderFieldValue(status) {
		return fmt.Errorf("%w: status %q contains control characters", types.ErrInvalidHeader, status)
	}
	return nil
}

func validateHeader(h Header) error {
	if !httpguts.ValidHeaderFieldName(h.Name) {
		return fmt.Errorf("%w: name %q", types.ErrInvalidHeader, h.Name)
	}
	if !httpguts.ValidHeaderFieldValue(h.Value) {
		return fmt.Errorf("%w: value of %s contains control characters", types.ErrInvalidHeader, h.Name)
	}
	if hopByHop[strings.ToLower(h.Name)] {
		return fmt.Errorf("%w: %s is a hop-by-hop header", types.ErrInvalidHeader, h.Name)
	}
	return nil
}
