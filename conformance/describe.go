// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"fmt"
	"html"
	"net/http"
	"slices"
	"strings"

	"github.com/Query-farm/streambody/streambody"
)

// Param describes one query parameter of a fixture route.
type Param struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default string `json:"default"`
}

type route struct {
	Path    string
	Format  streambody.FormatKind
	Summary string
	Params  []Param
	build   builder
}

// RouteInfo is one element of the /__describe__ response.
type RouteInfo struct {
	Path    string  `json:"path"`
	Format  string  `json:"format"`
	Summary string  `json:"summary"`
	Params  []Param `json:"params"`
}

// Routes describes every fixture route in registration order.
func Routes() []RouteInfo {
	out := make([]RouteInfo, 0, len(routes))
	for _, rt := range routes {
		out = append(out, RouteInfo{
			Path:    rt.Path,
			Format:  rt.Format.String(),
			Summary: rt.Summary,
			Params:  slices.Clone(rt.Params),
		})
	}
	return out
}

func describe(_ *http.Request, opts []streambody.Option) (*streambody.Body, error) {
	return streambody.JSONArrayWithEnvelope(slices.Values(Routes()), describeEnvelope{Service: "streambody-conformance"}, "routes", opts...), nil
}

type describeEnvelope struct {
	Service string `json:"service"`
}

const indexHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>streambody conformance</title>
<style>
  body { font-family: system-ui, -apple-system, sans-serif; max-width: 900px;
         margin: 0 auto; padding: 40px 20px; color: #2c2c1e; background: #faf8f0; }
  h1 { color: #2d5016; }
  code { font-family: monospace; background: #f0ece0; padding: 2px 6px;
         border-radius: 3px; font-size: 0.85em; }
  a { color: #2d5016; text-decoration: none; }
  .card { border: 1px solid #f0ece0; border-radius: 8px; padding: 16px 20px;
          margin-bottom: 12px; background: #fff; }
  .badge { display: inline-block; padding: 2px 8px; border-radius: 4px;
           font-size: 0.75em; font-weight: 600; text-transform: uppercase;
           background: #e0ecf5; color: #1a4a6b; margin-left: 8px; }
  table { width: 100%%; border-collapse: collapse; font-size: 0.9em; margin-top: 8px; }
  th { text-align: left; padding: 6px 10px; background: #f0ece0; }
  td { padding: 6px 10px; border-bottom: 1px solid #f0ece0; }
</style>
</head>
<body>
<h1>streambody conformance</h1>
<p>Machine readable description at <a href="/__describe__"><code>/__describe__</code></a>.</p>
%s
</body>
</html>`

func buildIndexHTML() []byte {
	var cards strings.Builder
	for _, rt := range routes {
		cards.WriteString(`<div class="card">`)
		fmt.Fprintf(&cards, `<a href="%s"><code>GET %s</code></a><span class="badge">%s</span>`,
			html.EscapeString(rt.Path), html.EscapeString(rt.Path), html.EscapeString(rt.Format.String()))
		fmt.Fprintf(&cards, `<p>%s</p>`, html.EscapeString(rt.Summary))
		cards.WriteString(`<table><tr><th>Parameter</th><th>Type</th><th>Default</th></tr>`)
		for _, p := range rt.Params {
			fmt.Fprintf(&cards, `<tr><td><code>%s</code></td><td><code>%s</code></td><td>%s</td></tr>`,
				html.EscapeString(p.Name), html.EscapeString(p.Type), html.EscapeString(p.Default))
		}
		cards.WriteString("</table></div>\n")
	}
	return []byte(fmt.Sprintf(indexHTMLTemplate, cards.String()))
}

func handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buildIndexHTML())
}
