package task

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalHeaderName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"content-type", "Content-Type"},
		{"CONTENT-LENGTH", "Content-Length"},
		{"x-FORWARDED-for", "X-Forwarded-For"},
		{"etag", "Etag"},
		{"www-authenticate", "Www-Authenticate"},
		{"x--double", "X--Double"},
		{"-leading", "-Leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalHeaderName(tt.input))
		})
	}
}

func TestHeaders_Lookup(t *testing.T) {
	h := Headers{
		{"Set-Cookie", "a=1"},
		{"content-type", "text/plain"},
		{"set-cookie", "b=2"},
	}

	v, ok := h.Get("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", v)

	_, ok = h.Get("Missing")
	assert.False(t, ok)

	assert.True(t, h.Has("SET-COOKIE"))
	assert.Equal(t, 2, h.Count("Set-Cookie"))
	assert.Equal(t, Headers{{"content-type", "text/plain"}}, h.Without("set-cookie"))
	assert.Len(t, h, 3)
}

func TestHeaders_Canonical(t *testing.T) {
	h := Headers{{"x-a", "1"}, {"X-A", "2"}}

	canonical := h.Canonical()
	assert.Equal(t, Headers{{"X-A", "1"}, {"X-A", "2"}}, canonical)
	// the source list is untouched
	assert.Equal(t, "x-a", h[0].Name)
}

func TestHeaders_Sorted(t *testing.T) {
	h := Headers{
		{"X-B", "1"},
		{"X-A", "2"},
		{"X-A", "1"},
		{"Date", "d"},
	}

	assert.Equal(t, Headers{
		{"Date", "d"},
		{"X-A", "1"},
		{"X-A", "2"},
		{"X-B", "1"},
	}, h.Sorted())
	assert.Equal(t, "X-B", h[0].Name)
}

func TestHeaders_AddAndClone(t *testing.T) {
	var h Headers
	assert.Nil(t, h.Clone())

	h.Add("A", "1")
	clone := h.Clone()
	clone.Add("B", "2")

	assert.Len(t, h, 1)
	assert.Len(t, clone, 2)
}

func TestRequest_Header(t *testing.T) {
	req := &Request{Headers: map[string]string{
		"CONNECTION":   "keep-alive",
		"Content-Type": "text/html",
	}}

	assert.Equal(t, "keep-alive", req.Header("Connection"))
	assert.Equal(t, "text/html", req.Header("content_type"))
	assert.Equal(t, "text/html", req.Header("CONTENT-TYPE"))
	assert.Equal(t, "", req.Header("Missing"))
}

func TestRequest_BodyStream(t *testing.T) {
	assert.Equal(t, http.NoBody, (&Request{}).BodyStream())

	body := strings.NewReader("x")
	assert.Equal(t, body, (&Request{Body: body}).BodyStream())
}
