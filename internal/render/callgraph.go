package render

import (
	"fmt"
	"sort"
	"strings"

	"unlua/internal/disasm"
)

// Provenance categories of a call edge's callee.
const (
	ProvClosure    = "closure"
	ProvGlobal     = "global"
	ProvField      = "field"
	ProvMethod     = "method"
	ProvUnresolved = "unresolved"
)

// ClassifyEdgeProv returns the provenance category for a call edge.
func ClassifyEdgeProv(e disasm.CallEdgeRecord) string {
	switch {
	case e.Func != "":
		return ProvClosure
	case e.Callee == "" || strings.Contains(e.Callee, "?"):
		return ProvUnresolved
	case strings.Contains(e.Callee, ":"):
		return ProvMethod
	case strings.Contains(e.Callee, "."):
		return ProvField
	default:
		return ProvGlobal
	}
}

// EdgeTarget returns the graph node a call edge points at.
func EdgeTarget(e disasm.CallEdgeRecord) string {
	switch {
	case e.Func != "":
		return e.Func
	case e.Callee != "":
		return e.Callee
	}
	return "unresolved_call"
}

// edgeColor returns the DOT color for an edge provenance category.
func edgeColor(prov string, t Theme) string {
	switch prov {
	case ProvClosure:
		return t.EdgeClosure
	case ProvGlobal:
		return t.EdgeGlobal
	case ProvField:
		return t.EdgeField
	case ProvMethod:
		return t.EdgeMethod
	case ProvUnresolved:
		return t.EdgeUnresolved
	default:
		return t.EdgeGlobal
	}
}

// edgeStyle returns dot style attributes for provenance and call kind.
func edgeStyle(prov, kind string) string {
	switch {
	case prov == ProvUnresolved:
		return "dashed"
	case kind == "tailcall":
		return "bold"
	case prov == ProvMethod:
		return "dotted"
	default:
		return "solid"
	}
}

// CallgraphDOT renders a callgraph from functions and call edges as DOT.
// Functions of the chunk are boxes clustered by source; callees outside the
// chunk (globals, library fields) are plaintext nodes.
// maxNodes limits the number of function nodes rendered (0 = all).
func CallgraphDOT(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord, title string, t Theme, maxNodes int) string {
	type edgeKey struct {
		from, to, prov, kind string
	}
	dedupEdges := make(map[edgeKey]int)
	for _, e := range edges {
		prov := ClassifyEdgeProv(e)
		dedupEdges[edgeKey{e.FromFunc, EdgeTarget(e), prov, e.Kind}]++
	}
	keys := make([]edgeKey, 0, len(dedupEdges))
	for k := range dedupEdges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.from != b.from {
			return a.from < b.from
		}
		if a.to != b.to {
			return a.to < b.to
		}
		return a.kind < b.kind
	})

	renderFuncs := funcs
	if maxNodes > 0 && len(renderFuncs) > maxNodes {
		renderFuncs = renderFuncs[:maxNodes]
	}
	funcSet := make(map[string]bool, len(renderFuncs))
	for _, f := range renderFuncs {
		funcSet[f.Name] = true
	}

	// Callees outside the chunk, reachable from rendered funcs.
	externalNodes := make(map[string]bool)
	for _, k := range keys {
		if funcSet[k.from] && !funcSet[k.to] && k.prov != ProvClosure {
			externalNodes[k.to] = true
		}
	}

	// Group rendered functions by source for clustering.
	sourceFuncs := make(map[string][]disasm.FuncRecord)
	var noSource []disasm.FuncRecord
	for _, f := range renderFuncs {
		if f.Source != "" {
			sourceFuncs[f.Source] = append(sourceFuncs[f.Source], f)
		} else {
			noSource = append(noSource, f)
		}
	}

	var b strings.Builder
	b.WriteString("digraph callgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  compound=true;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.4;\n")
	b.WriteString("  ranksep=0.6;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.12,0.06\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee];\n")
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')

	for _, src := range sortedKeys(sourceFuncs) {
		clusterID := "cluster_" + dotID(src)
		fmt.Fprintf(&b, "  subgraph %s {\n", clusterID)
		fmt.Fprintf(&b, "    label=<<font point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.ClusterLabel, dotEscape(truncLabel(src, 60)))
		fmt.Fprintf(&b, "    style=dotted; color=%q; penwidth=0.3;\n", t.ClusterBorder)
		for _, f := range sourceFuncs[src] {
			fmt.Fprintf(&b, "    %s [label=%q];\n", dotID(f.Name), funcLabel(f))
		}
		fmt.Fprintf(&b, "  }\n")
	}
	for _, f := range noSource {
		fmt.Fprintf(&b, "  %s [label=%q];\n", dotID(f.Name), funcLabel(f))
	}
	b.WriteByte('\n')

	for _, name := range sortedKeys(externalNodes) {
		fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fillcolor=none, fontcolor=%q, fontsize=8];\n",
			dotID(name), truncLabel(name, 50), t.ExternalText)
	}
	b.WriteByte('\n')

	for _, k := range keys {
		if !funcSet[k.from] || (!funcSet[k.to] && !externalNodes[k.to]) {
			continue
		}
		count := dedupEdges[k]
		color := edgeColor(k.prov, t)
		attrs := fmt.Sprintf("color=%q, style=%q", color, edgeStyle(k.prov, k.kind))
		if count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
			if count > 2 {
				attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%dx</font>>", color, count)
			}
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

func funcLabel(f disasm.FuncRecord) string {
	if f.LineDefined == 0 {
		return f.Name
	}
	return fmt.Sprintf("%s :%d", f.Name, f.LineDefined)
}

// CallgraphStats computes summary statistics from edges.
type CallgraphStats struct {
	TotalFunctions int
	TotalEdges     int
	CallEdges      int
	TailCallEdges  int
	Resolved       int
	Instructions   int
	ProvCounts     map[string]int
	TopCallers     []NameCount // sorted desc
	TopCallees     []NameCount // sorted desc
	TopFunctions   []NameCount // sorted desc by instruction count
}

// NameCount pairs a name with a count.
type NameCount struct {
	Name  string
	Count int
}

// ComputeStats computes callgraph statistics from JSONL data.
func ComputeStats(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord) CallgraphStats {
	stats := CallgraphStats{
		TotalFunctions: len(funcs),
		TotalEdges:     len(edges),
		ProvCounts:     make(map[string]int),
	}

	callerCount := make(map[string]int)
	calleeCount := make(map[string]int)
	for _, e := range edges {
		prov := ClassifyEdgeProv(e)
		stats.ProvCounts[prov]++
		if prov != ProvUnresolved {
			stats.Resolved++
			calleeCount[EdgeTarget(e)]++
		}
		callerCount[e.FromFunc]++
		if e.Kind == "tailcall" {
			stats.TailCallEdges++
		} else {
			stats.CallEdges++
		}
	}

	sizes := make(map[string]int, len(funcs))
	for _, f := range funcs {
		sizes[f.Name] = f.Instructions
		stats.Instructions += f.Instructions
	}

	stats.TopCallers = topNMap(callerCount, 20)
	stats.TopCallees = topNMap(calleeCount, 20)
	stats.TopFunctions = topNMap(sizes, 20)
	return stats
}

// topNMap returns the top N entries from a map, sorted descending by count
// and then by name.
func topNMap(m map[string]int, n int) []NameCount {
	entries := make([]NameCount, 0, len(m))
	for name, count := range m {
		entries = append(entries, NameCount{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
