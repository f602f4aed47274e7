package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/taskserve/pkg/task"
	"github.com/jzx17/taskserve/pkg/types"
)

const (
	lingerTimeout = 500 * time.Millisecond
	lingerBytes   = 256 << 10
)

// requestTask is what a connection waits on after handing a request to the
// dispatcher
type requestTask interface {
	types.Task
	Done() <-chan struct{}
	CloseOnFinish() bool
	WroteHeader() bool
	Cancelled() bool
}

// Conn is one accepted connection. It reads requests one at a time and
// implements task.Channel for the tasks answering them.
type Conn struct {
	nc     net.Conn
	server *Server
	logger *zap.Logger

	// limit caps how much of the request head bufio may pull in
	limit *io.LimitedReader
	br    *bufio.Reader

	stopping atomic.Bool
}

func newConn(nc net.Conn, server *Server) *Conn {
	limit := &io.LimitedReader{R: nc, N: math.MaxInt64}
	return &Conn{
		nc:     nc,
		server: server,
		logger: server.logger.With(zap.String("remote", nc.RemoteAddr().String())),
		limit:  limit,
		br:     bufio.NewReader(limit),
	}
}

// Write sends p to the client
func (c *Conn) Write(p []byte) (int, error) { return c.nc.Write(p) }

// Addr returns the client address
func (c *Conn) Addr() net.Addr { return c.nc.RemoteAddr() }

// Server returns the server the connection was accepted by
func (c *Conn) Server() task.Server { return c.server }

// interruptRead makes a pending or future request read fail so the
// connection closes once its current response is done
func (c *Conn) interruptRead() {
	c.stopping.Store(true)
	_ = c.nc.SetReadDeadline(c.server.clock.Now())
}

func (c *Conn) serve(ctx context.Context) {
	defer c.close()

	for ctx.Err() == nil {
		if timeout := c.server.adj.ChannelTimeout; timeout > 0 {
			_ = c.nc.SetReadDeadline(c.server.clock.Now().Add(timeout))
		}
		if c.stopping.Load() {
			return
		}

		req, httpReq, ok := c.readRequest()
		if !ok {
			return
		}

		if !c.dispatch(req) {
			return
		}
		if httpReq == nil || !c.finishBody(httpReq) {
			return
		}
	}
}

// close shuts down the write side first and drains what the client still
// sends, so a response followed by close is not lost to a reset
func (c *Conn) close() {
	if tc, ok := c.nc.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err == nil {
			_ = c.nc.SetReadDeadline(c.server.clock.Now().Add(lingerTimeout))
			_, _ = io.Copy(io.Discard, io.LimitReader(c.nc, lingerBytes))
		}
	}
	if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("Close failed", zap.Error(err))
	}
}

// dispatch hands req to the dispatcher and waits for the response. It
// reports whether the connection may carry another request.
func (c *Conn) dispatch(req *task.Request) bool {
	var t requestTask
	if req.Error != nil {
		t = task.NewErrorTask(c, req, task.WithClock(c.server.clock))
	} else {
		t = task.NewAppTask(c, req, task.WithClock(c.server.clock))
	}

	if err := c.server.dispatcher.AddTask(t); err != nil {
		c.logger.Warn("Request dropped", zap.String("task_id", t.ID()), zap.Error(err))
		return false
	}
	<-t.Done()

	if !t.WroteHeader() && !t.Cancelled() {
		// the application failed before anything reached the client
		c.answerInternalError(req)
		return false
	}
	return !t.CloseOnFinish()
}

func (c *Conn) answerInternalError(req *task.Request) {
	failed := *req
	failed.Error = task.InternalServerError("The server encountered an unexpected internal server error")

	t := task.NewErrorTask(c, &failed, task.WithClock(c.server.clock))
	if err := t.Service(); err != nil {
		c.logger.Debug("Error response failed", zap.Error(err))
	}
}

// finishBody discards whatever the application left unread so the next
// request starts at a message boundary
func (c *Conn) finishBody(r *http.Request) bool {
	if _, err := io.Copy(io.Discard, r.Body); err != nil {
		c.logger.Debug("Discarding request body failed", zap.Error(err))
		return false
	}
	_ = r.Body.Close()
	return !r.Close
}

// readRequest parses the next request. A nil *http.Request with ok set
// means an error response must be sent and the connection closed.
func (c *Conn) readRequest() (*task.Request, *http.Request, bool) {
	adj := c.server.adj
	c.limit.N = int64(adj.MaxRequestHeaderSize)

	r, err := http.ReadRequest(c.br)
	headLimitHit := c.limit.N <= 0
	c.limit.N = math.MaxInt64

	if err != nil {
		switch {
		case headLimitHit:
			return c.errorRequest(task.RequestHeaderFieldsTooLarge(
				fmt.Sprintf("exceeds max_header of %d", adj.MaxRequestHeaderSize))), nil, true
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
			return nil, nil, false
		case isTimeout(err), isReadFailure(err):
			return nil, nil, false
		default:
			c.logger.Debug("Malformed request", zap.Error(err))
			return c.errorRequest(task.BadRequest(err.Error())), nil, true
		}
	}

	if maxBody := adj.MaxRequestBodySize; maxBody > 0 {
		if r.ContentLength > maxBody {
			return c.errorRequest(task.RequestEntityTooLarge(
				fmt.Sprintf("exceeds max_body of %d", maxBody))), nil, true
		}
		r.Body = http.MaxBytesReader(nil, r.Body, maxBody)
	}

	return c.convert(r), r, true
}

func (c *Conn) errorRequest(e *task.RequestError) *task.Request {
	return &task.Request{
		Version:   "1.0",
		Command:   "GET",
		Path:      "/",
		URLScheme: c.server.adj.URLScheme,
		Error:     e,
	}
}

// convert maps a parsed request onto the task form. Repeated headers are
// joined with ", ".
func (c *Conn) convert(r *http.Request) *task.Request {
	headers := make(map[string]string, len(r.Header)+2)
	for name, values := range r.Header {
		headers[name] = strings.Join(values, ", ")
	}
	if r.Host != "" {
		headers["Host"] = r.Host
	}
	if len(r.TransferEncoding) > 0 {
		headers["Transfer-Encoding"] = strings.Join(r.TransferEncoding, ", ")
	}

	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	return &task.Request{
		Version:   fmt.Sprintf("%d.%d", r.ProtoMajor, r.ProtoMinor),
		Command:   r.Method,
		Path:      path,
		Query:     r.URL.RawQuery,
		URLScheme: c.server.adj.URLScheme,
		Headers:   headers,
		Body:      r.Body,
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isReadFailure reports transport errors such as a reset connection
func isReadFailure(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "read"
}

var (
	_ task.Channel = (*Conn)(nil)
	_ task.Server  = (*Server)(nil)
)
