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
package banner

import (
	"strings"

	"catchall/internal/version"

	"github.com/pterm/pterm"
)

const tagline = "Every request, any host, any path, reported."

// Info describes the running instance for the startup summary.
type Info struct {
	Addr      string
	Sink      string
	Resolvers string
	Store     string // database path, empty for memory only
	Pages     []string
	Watch     bool
}

// Render returns the startup summary as a boxed table.
func Render(info Info) (string, error) {
	store := info.Store
	if store == "" {
		store = "memory only"
	}
	hosts := "none"
	if len(info.Pages) > 0 {
		hosts = strings.Join(info.Pages, ", ")
	}
	if info.Watch {
		hosts += " (watching)"
	}

	table, err := pterm.DefaultTable.WithData(pterm.TableData{
		{"listen", info.Addr},
		{"reports", info.Sink},
		{"geo", info.Resolvers},
		{"geo store", store},
		{"pages", hosts},
	}).Srender()
	if err != nil {
		return "", err
	}

	return pterm.DefaultBox.
		WithTitle(pterm.LightBlue("catchall " + version.Version)).
		WithTitleTopCenter().
		Sprint(tagline + "\n\n" + table), nil
}

// Print writes the startup summary to stdout. Rendering failures are not fatal.
func Print(info Info) {
	out, err := Render(info)
	if err != nil {
		pterm.Info.Printfln("catchall %s listening on %s", version.Version, info.Addr)
		return
	}
	pterm.Println(out)
}
