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
package handlers

import (
	"context"
	"errors"
	"net/http"

	"catchall/internal/capture"
	"catchall/internal/pages"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Spawner schedules a background report for a captured request.
type Spawner interface {
	Spawn(ctx context.Context, req *capture.Request)
}

// CatchAllHandler answers every request: capture, schedule the report, then
// serve a page or fall back to 204.
type CatchAllHandler struct {
	reporter     Spawner
	pages        pages.Provider
	logger       *pterm.Logger
	maxBodyBytes int64
}

// NewCatchAllHandler creates the handler. provider may be nil, in which case
// every request gets 204.
func NewCatchAllHandler(reporter Spawner, provider pages.Provider, logger *pterm.Logger, maxBodyBytes int64) *CatchAllHandler {
	return &CatchAllHandler{
		reporter:     reporter,
		pages:        provider,
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// Handle is registered for every method and path.
func (h *CatchAllHandler) Handle(c *gin.Context) {
	req, err := capture.Capture(c.Request, capture.Options{
		MaxBodyBytes: h.maxBodyBytes,
		ClientIP:     c.ClientIP(),
	})
	if err != nil {
		h.rejectCapture(c, err)
		return
	}

	h.reporter.Spawn(c.Request.Context(), req)

	if c.Request.Method == http.MethodGet && h.pages != nil {
		res := h.pages.Lookup(req.Hostname, pages.Data{
			Host:   req.Hostname,
			Method: req.Method,
			Path:   req.Path,
			Query:  req.Query,
		})
		if res.Found {
			if req.Path != "/" {
				h.logger.Trace("Redirecting to page root", h.logger.Args("host", req.Hostname, "path", req.Path))
				c.Redirect(http.StatusTemporaryRedirect, "/")
				return
			}
			contentType := res.ContentType
			if contentType == "" {
				contentType = pages.ContentType
			}
			c.Data(http.StatusOK, contentType, res.Content)
			return
		}
	}

	c.Status(http.StatusNoContent)
}

func (h *CatchAllHandler) rejectCapture(c *gin.Context, err error) {
	status := http.StatusBadRequest
	var capErr *capture.Error
	if errors.As(err, &capErr) && capErr.TooLarge {
		status = http.StatusRequestEntityTooLarge
	}
	h.logger.Debug("Failed to capture request",
		h.logger.Args("method", c.Request.Method, "path", c.Request.URL.Path, "status", status, "error", err))
	c.AbortWithStatus(status)
}
