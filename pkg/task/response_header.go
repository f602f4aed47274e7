package task

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jzx17/taskserve/pkg/types"
)

// headerScan holds the values of the headers that decide persistence
type headerScan struct {
	connection       string // lower-cased
	hasConnection    bool
	contentLength    string
	hasContentLength bool
	transferEncoding string // lower-cased
	hasDate          bool
	hasServer        bool
}

func scanHeaders(h Headers) headerScan {
	var s headerScan
	for _, f := range h {
		switch f.Name {
		case "Connection":
			s.connection = strings.ToLower(strings.TrimSpace(f.Value))
			s.hasConnection = true
		case "Content-Length":
			s.contentLength = f.Value
			s.hasContentLength = true
		case "Transfer-Encoding":
			s.transferEncoding = strings.ToLower(strings.TrimSpace(f.Value))
		case "Date":
			s.hasDate = true
		case "Server":
			s.hasServer = true
		}
	}
	return s
}

// OutgoingHeaders returns the full header list that BuildResponseHeader
// renders, and marks the task for closing when the connection cannot
// persist. The staged response headers are left untouched.
func (t *Task) OutgoingHeaders() Headers {
	headers := t.responseHeaders.Canonical()
	scan := scanHeaders(headers)

	if !scan.hasContentLength && t.contentLength != unsetLength {
		scan.contentLength = strconv.FormatInt(t.contentLength, 10)
		scan.hasContentLength = true
		headers.Add("Content-Length", scan.contentLength)
	}

	forceClose := func() {
		if scan.connection != "close" {
			headers = headers.Without("Connection")
			headers.Add("Connection", "close")
		}
		t.closeOnFinish = true
	}

	inbound := strings.ToLower(strings.TrimSpace(t.request.Header("Connection")))

	switch t.version {
	case "1.0":
		switch {
		case inbound != "keep-alive":
			forceClose()
		case !scan.hasContentLength:
			forceClose()
		case !scan.hasConnection:
			headers.Add("Connection", "Keep-Alive")
		case scan.connection == "close":
			t.closeOnFinish = true
		}
	case "1.1":
		switch {
		case scan.connection == "close":
			// already declared; do not add a second header
			t.closeOnFinish = true
		case inbound == "close":
			forceClose()
		case scan.transferEncoding != "" && scan.transferEncoding != "chunked":
			forceClose()
		case strings.HasPrefix(t.status, "304"):
			// a headers-only reply needs no Content-Length
		case !scan.hasContentLength:
			forceClose()
		}
	default:
		forceClose()
	}

	ident := t.adj.Ident
	if !scan.hasServer {
		headers.Add("Server", ident)
	} else {
		headers.Add("Via", ident)
	}
	if !scan.hasDate {
		headers.Add("Date", t.startTime.UTC().Format(http.TimeFormat))
	}

	return headers
}

// BuildResponseHeader renders the status line and the sorted header
// block, terminated by a blank line
func (t *Task) BuildResponseHeader() []byte {
	headers := t.OutgoingHeaders().Sorted()

	buf := types.HeaderBufferPool.Get()
	defer types.HeaderBufferPool.Put(buf)

	buf.WriteString("HTTP/")
	buf.WriteString(t.version)
	buf.WriteByte(' ')
	buf.WriteString(t.status)
	for _, f := range headers {
		buf.WriteString("\r\n")
		buf.WriteString(f.Name)
		buf.WriteString(": ")
		buf.WriteString(f.Value)
	}
	buf.WriteString("\r\n\r\n")

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
