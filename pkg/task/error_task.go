package task

import (
	"fmt"
	"strconv"
)

// ErrorTask answers a request that could not be parsed or accepted. Its
// status is known up front, so it is complete from construction.
type ErrorTask struct {
	*Task
}

// NewErrorTask creates a task answering request.Error. A request without
// error detail is answered with 500 Internal Server Error.
func NewErrorTask(channel Channel, request *Request, opts ...Option) *ErrorTask {
	t := &ErrorTask{Task: newTask(channel, request, opts...)}
	t.complete = true
	return t
}

// Service writes the error response
func (t *ErrorTask) Service() error {
	return t.service(t.Execute)
}

// Execute formats the error and writes it in one call
func (t *ErrorTask) Execute() error {
	e := t.request.Error
	if e == nil {
		e = InternalServerError("The server encountered an unexpected condition.")
	}

	body := fmt.Sprintf("%s\r\n\r\n%s\r\n\r\n(generated by %s)", e.Reason, e.Body, t.adj.Ident)

	t.status = fmt.Sprintf("%d %s", e.Code, e.Reason)
	t.contentLength = int64(len(body))
	t.responseHeaders.Add("Content-Length", strconv.Itoa(len(body)))
	t.responseHeaders.Add("Content-Type", "text/plain")
	t.responseHeaders.Add("Connection", "close")
	t.closeOnFinish = true

	return t.Write([]byte(body))
}
