package task

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jzx17/taskserve/internal/testutils"
	"github.com/jzx17/taskserve/pkg/config"
)

var testStart = time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)

const testDate = "Sat, 14 Mar 2026 09:26:53 GMT"

// recordingChannel captures everything a task writes
type recordingChannel struct {
	server  *BasicServer
	addr    net.Addr
	writes  [][]byte
	buf     bytes.Buffer
	failErr error
}

func newRecordingChannel(app Application, logger *zap.Logger) *recordingChannel {
	adj := config.DefaultAdjustments()
	adj.Ident = "testserve"
	return &recordingChannel{
		server: &BasicServer{
			App:  app,
			Port: 8080,
			Name: "localhost",
			Adj:  adj,
			Log:  logger,
		},
		addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 51000},
	}
}

func (c *recordingChannel) Write(p []byte) (int, error) {
	if c.failErr != nil {
		return 0, c.failErr
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return c.buf.Write(p)
}

func (c *recordingChannel) Addr() net.Addr { return c.addr }

func (c *recordingChannel) Server() Server { return c.server }

// response splits what was written into the status line, header lines
// and body
func (c *recordingChannel) response(t *testing.T) (string, []string, string) {
	t.Helper()

	raw := c.buf.String()
	head, body, found := strings.Cut(raw, "\r\n\r\n")
	if !found {
		t.Fatalf("no header terminator in %q", raw)
	}
	lines := strings.Split(head, "\r\n")
	return lines[0], lines[1:], body
}

func newRequest(version string, headers map[string]string) *Request {
	if headers == nil {
		headers = map[string]string{}
	}
	return &Request{
		Version:   version,
		Command:   "GET",
		Path:      "/",
		URLScheme: "http",
		Headers:   headers,
	}
}

func newTestTask(t *testing.T, version string, headers map[string]string) (*Task, *recordingChannel) {
	t.Helper()

	_, clock := testutils.FixedClock(t, testStart)
	ch := newRecordingChannel(nil, nil)
	tk := newTask(ch, newRequest(version, headers), WithClock(clock))
	tk.Start()
	return tk, ch
}

var errBrokenPipe = errors.New("broken pipe")
