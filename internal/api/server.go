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
package api

import (
	"io"
	"net/http"
	"time"

	"catchall/internal/api/handlers"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// Config for the HTTP engine.
type Config struct {
	GinMode        string
	TrustedProxies []string
}

// NewRouter builds a gin engine that routes every method and path to the
// catch-all handler.
func NewRouter(cfg Config, h *handlers.CatchAllHandler, logger *pterm.Logger) (*gin.Engine, error) {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = false
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	router.Use(recovery(logger), requestLogger(logger))

	// Any covers GET, POST, PUT, PATCH, HEAD, OPTIONS, DELETE, CONNECT and TRACE.
	router.Any("/*path", h.Handle)
	router.NoRoute(h.Handle)
	router.NoMethod(h.Handle)

	return router, nil
}

// recovery keeps the 204 fallback even when a handler panics.
func recovery(logger *pterm.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		logger.WithCaller().Error("Handler panicked",
			logger.Args("method", c.Request.Method, "path", c.Request.URL.Path, "panic", rec))
		c.AbortWithStatus(http.StatusNoContent)
	})
}

func requestLogger(logger *pterm.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("Request handled",
			logger.Args(
				"method", c.Request.Method,
				"host", c.Request.Host,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"client", c.ClientIP(),
				"duration_ms", time.Since(start).Milliseconds(),
			))
	}
}
