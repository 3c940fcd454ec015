// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request is an immutable snapshot of an inbound HTTP request.
//
// Repeated header names are joined with ", " in the order they were received.
// Repeated cookie names and query keys keep the last value.
type Request struct {
	ID         string
	Method     string
	URL        string
	Hostname   string
	Path       string
	ClientHost string
	ClientPort int
	Headers    map[string]string
	Cookies    map[string]string
	Query      map[string]string
	Body       []byte
	// Truncated is set when the body exceeded Options.MaxBodyBytes and only
	// the first MaxBodyBytes were kept.
	Truncated  bool
	ReceivedAt time.Time
}

// Addr returns "host:port" for the client, bracketing IPv6 hosts. The port
// is omitted when it is unknown.
func (r *Request) Addr() string {
	if r.ClientPort == 0 {
		return r.ClientHost
	}
	return net.JoinHostPort(r.ClientHost, strconv.Itoa(r.ClientPort))
}

// Error reports that the request body stream could not be read.
type Error struct {
	TooLarge bool
	Err      error
}

func (e *Error) Error() string {
	if e.TooLarge {
		return fmt.Sprintf("request body too large: %v", e.Err)
	}
	return fmt.Sprintf("read request body: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options tune Capture. The zero value reads the whole body and takes the
// client host from the peer address.
type Options struct {
	// MaxBodyBytes caps the bytes kept from the body; 0 keeps everything.
	// Larger bodies are truncated, never rejected.
	MaxBodyBytes int64
	// ClientIP overrides the host part of RemoteAddr, e.g. gin's proxy-aware
	// ClientIP. The peer port then belongs to the proxy and is dropped.
	ClientIP string
}

// Capture reads the request body exactly once and replaces r.Body with a
// reader over the buffered bytes, so later consumers see the same content.
func Capture(r *http.Request, opts Options) (*Request, error) {
	body, truncated, err := readBody(r, opts.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	host, port := splitRemoteAddr(r.RemoteAddr)
	if opts.ClientIP != "" && opts.ClientIP != host {
		host, port = opts.ClientIP, 0
	}

	return &Request{
		ID:         uuid.NewString(),
		Method:     r.Method,
		URL:        fullURL(r),
		Hostname:   hostname(r),
		Path:       r.URL.Path,
		ClientHost: host,
		ClientPort: port,
		Headers:    headers(r),
		Cookies:    cookies(r),
		Query:      query(r),
		Body:       body,
		Truncated:  truncated,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

func readBody(r *http.Request, limit int64) ([]byte, bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return []byte{}, false, nil
	}
	defer r.Body.Close()

	reader := io.Reader(r.Body)
	if limit > 0 {
		// one extra byte distinguishes "exactly at the limit" from "over it"
		reader = io.LimitReader(r.Body, limit+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		return nil, false, &Error{TooLarge: errors.As(err, &maxErr), Err: err}
	}
	if limit > 0 && int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

func splitRemoteAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func fullURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func hostname(r *http.Request) string {
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}

func headers(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header)+1)
	// net/http moves Host out of the header map
	if r.Host != "" {
		out["Host"] = r.Host
	}
	for name, values := range r.Header {
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func cookies(r *http.Request) map[string]string {
	list := r.Cookies()
	out := make(map[string]string, len(list))
	for _, c := range list {
		out[c.Name] = c.Value
	}
	return out
}

func query(r *http.Request) map[string]string {
	values := r.URL.Query()
	out := make(map[string]string, len(values))
	for key, vs := range values {
		if len(vs) > 0 {
			out[key] = vs[len(vs)-1]
		}
	}
	return out
}
