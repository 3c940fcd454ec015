package pages

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pterm/pterm"
)

const (
	TemplateExt = ".html"
	ContentType = "text/html; charset=utf-8"
)

// TemplateProvider serves <host>.html templates from a directory. Templates
// are parsed on Reload and rendered on every lookup.
type TemplateProvider struct {
	dir    string
	logger *pterm.Logger

	mu    sync.RWMutex
	pages map[string]*template.Template
}

// NewTemplateProvider loads every template in dir. A missing directory is
// not an error: the provider starts empty and serves nothing.
func NewTemplateProvider(dir string, logger *pterm.Logger) (*TemplateProvider, error) {
	p := &TemplateProvider{
		dir:    dir,
		logger: logger,
		pages:  make(map[string]*template.Template),
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-parses the directory and swaps the page set atomically. Files
// that fail to parse are skipped with a warning.
func (p *TemplateProvider) Reload() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("Templates directory does not exist, no pages will be served",
				p.logger.Args("dir", p.dir))
			p.swap(make(map[string]*template.Template))
			return nil
		}
		return fmt.Errorf("read templates dir %s: %w", p.dir, err)
	}

	pages := make(map[string]*template.Template, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), TemplateExt) {
			continue
		}
		host := strings.ToLower(strings.TrimSuffix(entry.Name(), TemplateExt))
		path := filepath.Join(p.dir, entry.Name())

		tmpl, err := template.ParseFiles(path)
		if err != nil {
			p.logger.Warn("Skipping invalid template", p.logger.Args("file", path, "error", err))
			continue
		}
		pages[host] = tmpl
	}

	p.swap(pages)
	p.logger.Debug("Templates loaded", p.logger.Args("dir", p.dir, "pages", len(pages)))
	return nil
}

func (p *TemplateProvider) swap(pages map[string]*template.Template) {
	p.mu.Lock()
	p.pages = pages
	p.mu.Unlock()
}

// Hosts returns the hostnames that currently have a page, sorted.
func (p *TemplateProvider) Hosts() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hosts := make([]string, 0, len(p.pages))
	for h := range p.pages {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Lookup renders the page for host. A render failure is logged and reported
// as NotFound so the caller falls back to its default response.
func (p *TemplateProvider) Lookup(host string, data Data) Result {
	host = normalizeHost(host)

	p.mu.RLock()
	tmpl, ok := p.pages[host]
	p.mu.RUnlock()
	if !ok {
		return NotFound()
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		p.logger.WithCaller().Warn("Failed to render page", p.logger.Args("host", host, "error", err))
		return NotFound()
	}

	return Result{Found: true, Content: buf.Bytes(), ContentType: ContentType}
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}
