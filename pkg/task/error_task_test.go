package task

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/taskserve/internal/testutils"
)

func TestErrorTask_Response(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		err        *RequestError
		wantStatus string
		wantBody   string
	}{
		{
			name:       "bad request",
			version:    "1.1",
			err:        BadRequest("Header line too long"),
			wantStatus: "HTTP/1.1 400 Bad Request",
			wantBody:   "Bad Request\r\n\r\nHeader line too long\r\n\r\n(generated by testserve)",
		},
		{
			name:       "entity too large on 1.0",
			version:    "1.0",
			err:        RequestEntityTooLarge("exceeds max_body of 1024"),
			wantStatus: "HTTP/1.0 413 Request Entity Too Large",
			wantBody:   "Request Entity Too Large\r\n\r\nexceeds max_body of 1024\r\n\r\n(generated by testserve)",
		},
		{
			name:       "missing error detail",
			version:    "1.1",
			wantStatus: "HTTP/1.1 500 Internal Server Error",
			wantBody:   "Internal Server Error\r\n\r\nThe server encountered an unexpected condition.\r\n\r\n(generated by testserve)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, clock := testutils.FixedClock(t, testStart)
			ch := newRecordingChannel(nil, nil)
			req := newRequest(tt.version, nil)
			req.Error = tt.err

			tk := NewErrorTask(ch, req, WithClock(clock))
			assert.True(t, tk.Complete())

			require.NoError(t, tk.Service())

			status, lines, body := ch.response(t)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
			assert.Equal(t, []string{
				"Connection: close",
				"Content-Length: " + strconv.Itoa(len(tt.wantBody)),
				"Content-Type: text/plain",
				"Date: " + testDate,
				"Server: testserve",
			}, lines)
			assert.True(t, tk.CloseOnFinish())
		})
	}
}

func TestErrorTask_SingleWrite(t *testing.T) {
	ch := newRecordingChannel(nil, nil)
	req := newRequest("1.1", nil)
	req.Error = RequestTimeout("no data")

	require.NoError(t, NewErrorTask(ch, req).Service())

	// header block, then the whole body at once
	assert.Len(t, ch.writes, 2)
}

func TestRequestError_Constructors(t *testing.T) {
	tests := []struct {
		err  *RequestError
		code int
	}{
		{BadRequest("x"), 400},
		{RequestTimeout("x"), 408},
		{RequestEntityTooLarge("x"), 413},
		{RequestHeaderFieldsTooLarge("x"), 431},
		{InternalServerError("x"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.err.Reason, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Reason)
			assert.Equal(t, tt.err.Reason+": x", tt.err.Error())
		})
	}
}
