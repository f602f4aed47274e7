package task

import (
	"io"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Environment keys
const (
	EnvRequestMethod  = "REQUEST_METHOD"
	EnvServerPort     = "SERVER_PORT"
	EnvServerName     = "SERVER_NAME"
	EnvServerSoftware = "SERVER_SOFTWARE"
	EnvServerProtocol = "SERVER_PROTOCOL"
	EnvScriptName     = "SCRIPT_NAME"
	EnvPathInfo       = "PATH_INFO"
	EnvQueryString    = "QUERY_STRING"
	EnvRemoteAddr     = "REMOTE_ADDR"
	EnvContentType    = "CONTENT_TYPE"
	EnvContentLength  = "CONTENT_LENGTH"

	EnvVersion      = "wsgi.version"
	EnvURLScheme    = "wsgi.url_scheme"
	EnvErrors       = "wsgi.errors"
	EnvInput        = "wsgi.input"
	EnvMultithread  = "wsgi.multithread"
	EnvMultiprocess = "wsgi.multiprocess"
	EnvRunOnce      = "wsgi.run_once"
	EnvFileWrapper  = "wsgi.file_wrapper"
)

// renamedHeaders are request headers exposed without the HTTP_ prefix
var renamedHeaders = map[string]string{
	"CONTENT_LENGTH": EnvContentLength,
	"CONTENT_TYPE":   EnvContentType,
}

// Environ is the environment mapping handed to an application. Values are
// strings except for the wsgi.* entries.
type Environ map[string]any

// String returns the string value stored under key, or ""
func (e Environ) String(key string) string {
	s, _ := e[key].(string)
	return s
}

// Input returns the request body stream
func (e Environ) Input() io.Reader {
	r, _ := e[EnvInput].(io.Reader)
	return r
}

// Errors returns the error stream
func (e Environ) Errors() io.Writer {
	w, _ := e[EnvErrors].(io.Writer)
	return w
}

// FileWrapper returns the file wrapper, if any
func (e Environ) FileWrapper() FileWrapper {
	fw, _ := e[EnvFileWrapper].(FileWrapper)
	return fw
}

func buildEnviron(t *Task) Environ {
	request := t.request
	server := t.server
	adj := t.adj

	path := request.Path
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	if strings.HasPrefix(path, "/") {
		path = "/" + strings.TrimLeft(path, "/")
	}
	if prefix := adj.URLPrefix; prefix != "" {
		if path == prefix {
			path = ""
		} else if strings.HasPrefix(path, prefix+"/") {
			path = path[len(prefix):]
		}
	}

	scheme := request.URLScheme
	if scheme == "" {
		scheme = adj.URLScheme
	}

	environ := Environ{
		EnvRequestMethod:  strings.ToUpper(request.Command),
		EnvServerPort:     strconv.Itoa(server.EffectivePort()),
		EnvServerName:     server.ServerName(),
		EnvServerSoftware: adj.Ident,
		EnvServerProtocol: "HTTP/" + t.version,
		EnvScriptName:     adj.URLPrefix,
		EnvPathInfo:       path,
		EnvQueryString:    request.Query,
		EnvRemoteAddr:     remoteHost(t.channel.Addr()),

		EnvVersion:      [2]int{1, 0},
		EnvURLScheme:    scheme,
		EnvErrors:       zap.NewStdLog(t.logger.Named("wsgi.errors")).Writer(),
		EnvInput:        request.BodyStream(),
		EnvMultithread:  true,
		EnvMultiprocess: false,
		EnvRunOnce:      false,
		EnvFileWrapper: FileWrapper(func(r io.Reader, blockSize int) Body {
			if blockSize <= 0 {
				blockSize = adj.SendBytes
			}
			return NewReaderBody(r, blockSize)
		}),
	}

	names := make([]string, 0, len(request.Headers))
	for name := range request.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := headerKey(name)
		envKey, ok := renamedHeaders[key]
		if !ok {
			envKey = "HTTP_" + key
		}
		if _, exists := environ[envKey]; !exists {
			environ[envKey] = strings.TrimSpace(request.Headers[name])
		}
	}

	return environ
}

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
