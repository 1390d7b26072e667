package render

import (
	"fmt"
	"io"
	"strings"
)

// IndexPage is the data summarized by WriteIndexHTML.
type IndexPage struct {
	Title          string
	Stats          CallgraphStats
	EntryPoints    []string
	ReachableCount int
	CFGCount       int

	// SVGs present next to index.html.
	HasCallgraphSVG bool
	HasClosureSVG   bool
	HasReachableSVG bool
}

// WriteIndexHTML writes a small HTML page summarizing the graph output.
func WriteIndexHTML(w io.Writer, page IndexPage) error {
	ew := &errWriter{w: w}
	stats := page.Stats

	resolvedPct := 0.0
	if stats.TotalEdges > 0 {
		resolvedPct = float64(stats.Resolved) / float64(stats.TotalEdges) * 100
	}

	ew.printf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: "Helvetica Neue", Helvetica, Arial, sans-serif; font-size: 14px; color: #1A1A1A; background: #F5F5F5; margin: 2em; max-width: 900px; }
h1 { font-size: 18px; font-weight: 600; margin-bottom: 0.5em; }
h2 { font-size: 14px; font-weight: 600; margin-top: 1.5em; border-bottom: 1px solid #ddd; padding-bottom: 4px; }
table { border-collapse: collapse; margin: 0.5em 0; }
th, td { text-align: left; padding: 3px 12px 3px 0; font-size: 13px; }
th { font-weight: 600; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
.prov { display: inline-block; width: 10px; height: 10px; border-radius: 2px; margin-right: 4px; vertical-align: middle; }
a { color: #0B3D91; }
.bar { height: 8px; border-radius: 2px; display: inline-block; vertical-align: middle; }
.ep { font-family: "Courier New", monospace; font-size: 12px; }
</style>
</head>
<body>
`, htmlEscape(page.Title))

	ew.printf("<h1>%s</h1>\n", htmlEscape(page.Title))

	ew.printf("<h2>Summary</h2>\n<table>\n")
	ew.printf("<tr><td>Functions</td><td class=\"num\">%d</td></tr>\n", stats.TotalFunctions)
	ew.printf("<tr><td>Instructions</td><td class=\"num\">%d</td></tr>\n", stats.Instructions)
	ew.printf("<tr><td>Call sites</td><td class=\"num\">%d</td></tr>\n", stats.TotalEdges)
	ew.printf("<tr><td>CALL</td><td class=\"num\">%d</td></tr>\n", stats.CallEdges)
	ew.printf("<tr><td>TAILCALL</td><td class=\"num\">%d</td></tr>\n", stats.TailCallEdges)
	ew.printf("<tr><td>Resolved callees</td><td class=\"num\">%d (%.1f%%)</td></tr>\n", stats.Resolved, resolvedPct)
	ew.printf("<tr><td>Entry points</td><td class=\"num\">%d</td></tr>\n", len(page.EntryPoints))
	ew.printf("<tr><td>Reachable functions</td><td class=\"num\">%d</td></tr>\n", page.ReachableCount)
	if page.CFGCount > 0 {
		ew.printf("<tr><td>CFGs generated</td><td class=\"num\">%d</td></tr>\n", page.CFGCount)
	}
	ew.printf("</table>\n")

	ew.printf("<h2>Callee Provenance</h2>\n<table>\n")
	ew.printf("<tr><th></th><th>Category</th><th>Count</th><th></th></tr>\n")
	provOrder := []string{ProvClosure, ProvGlobal, ProvField, ProvMethod, ProvUnresolved}
	provLabels := map[string]string{
		ProvClosure:    "Nested function",
		ProvGlobal:     "Global",
		ProvField:      "Table field",
		ProvMethod:     "Method",
		ProvUnresolved: "Unresolved",
	}
	for _, prov := range provOrder {
		count := stats.ProvCounts[prov]
		if count == 0 {
			continue
		}
		color := edgeColor(prov, NASA)
		barW := 0
		if stats.TotalEdges > 0 {
			barW = max(count*200/stats.TotalEdges, 2)
		}
		ew.printf("<tr><td><span class=\"prov\" style=\"background:%s\"></span></td><td>%s</td><td class=\"num\">%d</td><td><span class=\"bar\" style=\"width:%dpx;background:%s\"></span></td></tr>\n",
			color, provLabels[prov], count, barW, color)
	}
	ew.printf("</table>\n")

	// Only SVGs are linked; browsers cannot open DOT.
	ew.printf("<h2>Graphs</h2>\n<p>")
	var links []string
	if page.HasReachableSVG {
		links = append(links, `<a href="reachable.svg">Reachable closure tree</a>`)
	}
	if page.HasClosureSVG {
		links = append(links, `<a href="closures.svg">Nesting graph</a>`)
	}
	if page.HasCallgraphSVG {
		links = append(links, `<a href="callgraph.svg">Function-level graph</a>`)
	}
	if page.CFGCount > 0 {
		links = append(links, `<a href="cfg/">Per-function CFGs</a>`)
	}
	if len(links) == 0 {
		ew.printf(`<span style="color:#9E9E9E">Run with --svg to generate SVGs</span>`)
	} else {
		ew.printf("%s", strings.Join(links, " | "))
	}
	ew.printf("</p>\n")

	if len(page.EntryPoints) > 0 {
		ew.printf("<h2>Entry Points</h2>\n")
		ew.printf("<p>%d functions not called through a local closure:</p>\n", len(page.EntryPoints))
		ew.printf("<table>\n<tr><th>Function</th></tr>\n")
		limit := min(len(page.EntryPoints), 50)
		for _, ep := range page.EntryPoints[:limit] {
			cfgLink := ""
			if page.CFGCount > 0 {
				cfgLink = fmt.Sprintf(` <a href="cfg/%s.svg" style="font-size:11px">[cfg]</a>`, SafeFileName(ep))
			}
			ew.printf("<tr><td class=\"ep\">%s%s</td></tr>\n", htmlEscape(ep), cfgLink)
		}
		if len(page.EntryPoints) > limit {
			ew.printf("<tr><td>... and %d more</td></tr>\n", len(page.EntryPoints)-limit)
		}
		ew.printf("</table>\n")
	}

	writeTop(ew, "Largest Functions", "Instructions", stats.TopFunctions, 15)
	writeTop(ew, "Top Callers", "Outgoing", stats.TopCallers, 15)
	writeTop(ew, "Top Callees", "Incoming", stats.TopCallees, 15)

	ew.printf("</body></html>\n")
	return ew.err
}

func writeTop(ew *errWriter, heading, column string, entries []NameCount, limit int) {
	if len(entries) == 0 {
		return
	}
	ew.printf("<h2>%s</h2>\n<table>\n", heading)
	ew.printf("<tr><th>Function</th><th>%s</th></tr>\n", column)
	for _, nc := range entries[:min(len(entries), limit)] {
		ew.printf("<tr><td>%s</td><td class=\"num\">%d</td></tr>\n", htmlEscape(nc.Name), nc.Count)
	}
	ew.printf("</table>\n")
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err == nil {
		_, e.err = fmt.Fprintf(e.w, format, args...)
	}
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
