package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jzx17/taskserve/pkg/config"
	"github.com/jzx17/taskserve/pkg/types"
)

const (
	defaultStatus = "200 OK"
	unsetLength   = -1
)

// Option configures a task at construction
type Option func(*Task)

// WithClock sets the clock used for the start time and Date header
func WithClock(clock types.Clock) Option {
	return func(t *Task) {
		t.clock = types.OrRealClock(clock)
	}
}

// WithLogger overrides the logger taken from the server
func WithLogger(logger *zap.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithID sets the task ID instead of a generated one
func WithID(id string) Option {
	return func(t *Task) {
		t.id = id
	}
}

// Task holds the state shared by every request/response exchange: the
// staged response headers, the header block bookkeeping and the write
// path to the channel. Concrete tasks embed it and supply Execute.
//
// A task is owned by one goroutine at a time: the channel until AddTask,
// then the worker servicing it.
type Task struct {
	id      string
	channel Channel
	request *Request
	server  Server
	adj     *config.Adjustments
	logger  *zap.Logger
	clock   types.Clock

	version         string
	status          string
	responseHeaders Headers

	wroteHeader   bool
	complete      bool
	closeOnFinish bool

	contentLength       int64
	contentBytesWritten int64
	bodyBytesProduced   int64
	loggedWriteExcess   bool

	startTime time.Time
	deferred  bool
	cancelled bool

	done     chan struct{}
	doneOnce sync.Once
}

func newTask(channel Channel, request *Request, opts ...Option) *Task {
	server := channel.Server()

	t := &Task{
		id:            uuid.NewString(),
		channel:       channel,
		request:       request,
		server:        server,
		adj:           server.Adjustments(),
		clock:         types.NewRealClock(),
		version:       normalizeVersion(request.Version),
		status:        defaultStatus,
		contentLength: unsetLength,
		done:          make(chan struct{}),
	}
	t.logger = server.Logger()
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.String("task_id", t.id))
	return t
}

func normalizeVersion(v string) string {
	if v == "1.0" || v == "1.1" {
		return v
	}
	return "1.0"
}

// ID returns the task ID
func (t *Task) ID() string { return t.id }

// Request returns the request being answered
func (t *Task) Request() *Request { return t.request }

// Version returns the HTTP version of the response
func (t *Task) Version() string { return t.version }

// Status returns the status line without the version
func (t *Task) Status() string { return t.status }

// ResponseHeaders returns a copy of the headers staged by the application
func (t *Task) ResponseHeaders() Headers { return t.responseHeaders.Clone() }

// WroteHeader reports whether the header block has been sent
func (t *Task) WroteHeader() bool { return t.wroteHeader }

// Complete reports whether a status has been committed
func (t *Task) Complete() bool { return t.complete }

// CloseOnFinish reports whether the connection must be closed after the
// response
func (t *Task) CloseOnFinish() bool { return t.closeOnFinish }

// ContentLength returns the declared body length, or -1
func (t *Task) ContentLength() int64 { return t.contentLength }

// ContentBytesWritten returns the number of body bytes sent
func (t *Task) ContentBytesWritten() int64 { return t.contentBytesWritten }

// StartTime returns the time the task started servicing
func (t *Task) StartTime() time.Time { return t.startTime }

// Cancelled reports whether the task was cancelled
func (t *Task) Cancelled() bool { return t.cancelled }

// Done is closed once the task has been serviced or cancelled
func (t *Task) Done() <-chan struct{} { return t.done }

// Defer marks the task as waiting for a worker
func (t *Task) Defer() error {
	t.deferred = true
	return nil
}

// Cancel abandons the task; the connection is closed by its owner
func (t *Task) Cancel() {
	t.cancelled = true
	t.closeOnFinish = true
	t.markDone()
}

func (t *Task) markDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

// Start records the start time
func (t *Task) Start() {
	t.startTime = t.clock.Now()
}

// Finish makes sure the header block is sent even for an empty body
func (t *Task) Finish() error {
	if !t.wroteHeader {
		return t.Write(nil)
	}
	return nil
}

// service runs start, execute and finish. Transport errors mark the
// connection for closing and only propagate when socket errors are logged.
func (t *Task) service(execute func() error) error {
	defer t.markDone()

	t.Start()
	err := execute()
	if err == nil {
		err = t.Finish()
	}
	if err == nil {
		return nil
	}

	t.closeOnFinish = true
	if IsSocketError(err) && !t.adj.LogSocketErrors {
		t.logger.Debug("Socket error swallowed", zap.Error(err))
		return nil
	}
	return err
}

// Write sends data to the channel, sending the header block first. The
// status must already be committed. Bytes past a declared Content-Length
// are dropped.
func (t *Task) Write(data []byte) error {
	if !t.complete {
		return types.ErrHeadersNotCommitted
	}

	if !t.wroteHeader {
		header := t.BuildResponseHeader()
		t.wroteHeader = true
		if err := t.channelWrite("header", header); err != nil {
			return err
		}
	}

	if len(data) == 0 {
		return nil
	}
	t.bodyBytesProduced += int64(len(data))

	towrite := data
	if t.contentLength != unsetLength {
		remaining := t.contentLength - t.contentBytesWritten
		if remaining < 0 {
			remaining = 0
		}
		if int64(len(towrite)) > remaining {
			towrite = towrite[:remaining]
			if !t.loggedWriteExcess {
				t.logger.Warn("Application-written content exceeded the number of bytes specified by Content-Length header",
					zap.Int64("content_length", t.contentLength))
				t.loggedWriteExcess = true
			}
		}
	}
	if len(towrite) == 0 {
		return nil
	}

	n, err := t.channel.Write(towrite)
	t.contentBytesWritten += int64(n)
	if err != nil {
		return &SocketError{Op: "write body", Err: err}
	}
	return nil
}

func (t *Task) channelWrite(op string, p []byte) error {
	if _, err := t.channel.Write(p); err != nil {
		return &SocketError{Op: "write " + op, Err: err}
	}
	return nil
}
