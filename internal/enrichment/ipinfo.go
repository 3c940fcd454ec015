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
package enrichment

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
)

const DefaultIPInfoURL = "https://ipinfo.io"

// maxIPInfoResponse caps how much of a lookup response is read.
const maxIPInfoResponse = 1 << 20

// IPInfoResolver queries the ipinfo.io HTTP API.
type IPInfoResolver struct {
	client  *http.Client
	baseURL string
	token   string
	logger  *pterm.Logger
}

// NewIPInfoResolver creates a resolver that shares client with the rest of the process.
func NewIPInfoResolver(client *http.Client, baseURL, token string, logger *pterm.Logger) *IPInfoResolver {
	if baseURL == "" {
		baseURL = DefaultIPInfoURL
	}
	return &IPInfoResolver{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
	}
}

func (r *IPInfoResolver) Name() string {
	return "ipinfo"
}

func (r *IPInfoResolver) Resolve(ctx context.Context, ip string) (GeoInfo, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	// ipinfo only answers {"bogon": true} for these; skip the quota hit
	if !routable(parsed) {
		return nil, fmt.Errorf("%w: %s is not publicly routable", ErrNoData, ip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxIPInfoResponse))
		return nil, fmt.Errorf("ipinfo returned status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIPInfoResponse)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode ipinfo response: %w", err)
	}

	info := flatten(raw)
	if len(info) == 0 {
		return nil, ErrNoData
	}

	r.logger.Trace("ipinfo lookup successful", r.logger.Args("ip", ip, "fields", len(info)))
	return info, nil
}

// flatten keeps scalar values as text and re-encodes nested values as compact JSON.
func flatten(raw map[string]any) GeoInfo {
	info := make(GeoInfo, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			info[key] = v
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			info[key] = string(b)
		default:
			info[key] = fmt.Sprint(v)
		}
	}
	return info
}

func routable(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast())
}
