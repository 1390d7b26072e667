package render

import (
	"fmt"
	"sort"
	"strings"

	"unlua/internal/signal"
)

type pathEdge struct{ from, to string }

// SignalDOT renders a focused call graph showing paths from entry points to
// signal functions. Closure edges are traced from functions without callers
// to each reachable signal function; pass-through chains are collapsed.
// Signal functions show their referenced strings and sensitive library calls
// as leaf nodes.
func SignalDOT(g *signal.SignalGraph, title string, t Theme) string {
	funcMap := make(map[string]*signal.SignalFunc, len(g.Funcs))
	for i := range g.Funcs {
		funcMap[g.Funcs[i].Name] = &g.Funcs[i]
	}

	fwd := make(map[string][]string)
	hasCaller := make(map[string]bool)
	for _, e := range g.Edges {
		if e.Kind == signal.EdgeClosure {
			fwd[e.From] = append(fwd[e.From], e.To)
			hasCaller[e.To] = true
		}
	}

	// High and medium severity signal functions, or every signal function
	// when none rate above low.
	signalSet := make(map[string]bool)
	for _, f := range g.Funcs {
		if f.Role == "signal" && (f.Severity == signal.SeverityHigh || f.Severity == signal.SeverityMedium) {
			signalSet[f.Name] = true
		}
	}
	if len(signalSet) == 0 {
		for _, f := range g.Funcs {
			if f.Role == "signal" {
				signalSet[f.Name] = true
			}
		}
	}

	// Forward BFS from roots, in function order.
	const maxDist = 8
	parent := make(map[string]string)
	dist := make(map[string]int)
	type bfsItem struct {
		name string
		d    int
	}
	var queue []bfsItem
	for _, f := range g.Funcs {
		if !hasCaller[f.Name] {
			if _, ok := dist[f.Name]; !ok {
				dist[f.Name] = 0
				queue = append(queue, bfsItem{f.Name, 0})
			}
		}
	}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.d >= maxDist {
			continue
		}
		for _, next := range fwd[item.name] {
			if _, ok := dist[next]; !ok {
				dist[next] = item.d + 1
				parent[next] = item.name
				queue = append(queue, bfsItem{next, item.d + 1})
			}
		}
	}

	pathNodes := make(map[string]bool)
	pathEdges := make(map[pathEdge]bool)
	for name := range signalSet {
		if _, ok := dist[name]; !ok {
			continue
		}
		for cur := name; ; {
			pathNodes[cur] = true
			p, ok := parent[cur]
			if !ok {
				break
			}
			pathEdges[pathEdge{p, cur}] = true
			cur = p
		}
	}
	for _, e := range g.Edges {
		if e.Kind == signal.EdgeClosure && signalSet[e.From] && signalSet[e.To] {
			pathNodes[e.From] = true
			pathNodes[e.To] = true
			pathEdges[pathEdge{e.From, e.To}] = true
		}
	}
	for name := range signalSet {
		pathNodes[name] = true
	}

	// Collapse intermediate nodes with exactly one edge in and one out.
	for changed := true; changed; {
		changed = false
		for _, name := range sortedKeys(pathNodes) {
			if !hasCaller[name] || signalSet[name] {
				continue
			}
			var ins, outs []pathEdge
			for e := range pathEdges {
				if e.to == name {
					ins = append(ins, e)
				}
				if e.from == name {
					outs = append(outs, e)
				}
			}
			if len(ins) == 1 && len(outs) == 1 {
				delete(pathEdges, ins[0])
				delete(pathEdges, outs[0])
				pathEdges[pathEdge{ins[0].from, outs[0].to}] = true
				delete(pathNodes, name)
				changed = true
			}
		}
	}

	var b strings.Builder
	b.WriteString("digraph signal {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.3;\n")
	b.WriteString("  ranksep=0.5;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.10,0.05\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.6, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeClosure)
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t; labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"9\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')

	nodes := sortedKeys(pathNodes)
	for _, name := range nodes {
		fi := funcMap[name]
		label := truncLabel(name, 40)
		var attrs string
		switch {
		case signalSet[name]:
			switch fi.Severity {
			case signal.SeverityHigh:
				attrs = `, fillcolor="#FCE4EC", color="#C62828", penwidth=1.5, fontcolor="#C62828"`
			case signal.SeverityMedium:
				attrs = `, fillcolor="#FFF3E0", color="#E65100", penwidth=1.2, fontcolor="#E65100"`
			default:
				attrs = `, fillcolor="#E3F2FD", color="#1565C0", penwidth=1.0`
			}
			if len(fi.Categories) > 0 {
				label += "\\n" + truncLabel(strings.Join(fi.Categories, ","), 33)
			}
		case !hasCaller[name]:
			attrs = fmt.Sprintf(`, fillcolor="#E8F5E9", color=%q, penwidth=1.2`, t.EdgeClosure)
		default:
			attrs = fmt.Sprintf(`, fillcolor=%q, color=%q, fontcolor=%q`, t.TermFill, t.ClusterBorder, t.ClusterLabel)
		}
		fmt.Fprintf(&b, "  %s [label=%q%s];\n", dotID(name), label, attrs)
	}
	b.WriteByte('\n')

	// Leaves: up to five distinct strings and every distinct sensitive
	// callee per signal function.
	const maxStrPerFunc = 5
	var leaves, leafEdges strings.Builder
	strIdx := 0
	for _, name := range nodes {
		fi := funcMap[name]
		if fi == nil || !signalSet[name] {
			continue
		}
		seen := make(map[string]bool)
		count := 0
		for _, sr := range fi.StringRefs {
			if seen[sr.Value] {
				continue
			}
			seen[sr.Value] = true
			count++
			if count > maxStrPerFunc {
				continue
			}
			sid := fmt.Sprintf("str_%d", strIdx)
			strIdx++
			color := stringColor(sr.Categories)
			fmt.Fprintf(&leaves, "  %s [shape=rect, style=\"filled,rounded\", fillcolor=\"#FFF8E1\", color=%q, penwidth=0.3, fontsize=7, fontcolor=%q, fontname=\"Courier,monospace\", margin=\"0.06,0.03\", height=0.2, label=%q];\n",
				sid, color, color, truncLabel(sr.Value, 60))
			fmt.Fprintf(&leafEdges, "  %s -> %s [style=dotted, arrowsize=0.3, penwidth=0.4, color=\"#C2185B\"];\n", dotID(name), sid)
		}
		if count > maxStrPerFunc {
			sid := fmt.Sprintf("str_%d", strIdx)
			strIdx++
			fmt.Fprintf(&leaves, "  %s [shape=plaintext, style=\"\", fontsize=7, fontcolor=%q, label=%q];\n",
				sid, t.ClusterLabel, fmt.Sprintf("+%d more", count-maxStrPerFunc))
			fmt.Fprintf(&leafEdges, "  %s -> %s [style=dotted, arrowsize=0.3, penwidth=0.4, color=\"#C2185B\"];\n", dotID(name), sid)
		}

		callees := make(map[string]bool)
		for _, c := range fi.APICalls {
			callees[c.Callee] = true
		}
		for _, callee := range sortedKeys(callees) {
			aid := dotID(name + "->" + callee)
			fmt.Fprintf(&leaves, "  %s [shape=plaintext, style=\"\", fontsize=8, fontcolor=\"#C62828\", label=%q];\n", aid, callee)
			fmt.Fprintf(&leafEdges, "  %s -> %s [style=dashed, color=\"#C62828\", penwidth=0.5];\n", dotID(name), aid)
		}
	}
	if leaves.Len() > 0 {
		b.WriteString(leaves.String())
		b.WriteByte('\n')
	}

	edges := make([]pathEdge, 0, len(pathEdges))
	for e := range pathEdges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].from != edges[j].from {
			return edges[i].from < edges[j].from
		}
		return edges[i].to < edges[j].to
	})
	for _, e := range edges {
		attrs := fmt.Sprintf("color=%q", t.EdgeClosure)
		if signalSet[e.to] {
			attrs = fmt.Sprintf("color=%q, penwidth=1.0", t.EdgeUnresolved)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(e.from), dotID(e.to), attrs)
	}
	b.WriteString(leafEdges.String())

	b.WriteString("}\n")
	return b.String()
}

func stringColor(cats []string) string {
	if len(cats) == 0 {
		return "#C2185B"
	}
	switch cats[0] {
	case signal.CatEncryption, signal.CatDataCollect, signal.CatBlockchain:
		return "#C62828"
	case signal.CatAuth:
		return "#AD1457"
	case signal.CatURL, signal.CatHost:
		return "#0B3D91"
	}
	return "#C2185B"
}
