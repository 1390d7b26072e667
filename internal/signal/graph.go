package signal

import (
	"sort"

	"unlua/internal/disasm"
)

// ClassifiedStringRef is a string reference with its signal categories.
type ClassifiedStringRef struct {
	Func       string   `json:"func"`
	PC         int      `json:"pc"`
	Const      int      `json:"const"`
	Value      string   `json:"value"`
	Categories []string `json:"categories,omitempty"`
}

// APICall is a call to a sensitive library function.
type APICall struct {
	PC       int    `json:"pc"`
	Callee   string `json:"callee"`
	Category string `json:"category"`
}

// SignalFunc is a function in the signal graph.
type SignalFunc struct {
	Name         string                `json:"name"`
	Source       string                `json:"source,omitempty"`
	LineDefined  int64                 `json:"line_defined"`
	Instructions int                   `json:"instructions"`
	StringRefs   []ClassifiedStringRef `json:"string_refs,omitempty"`
	APICalls     []APICall             `json:"api_calls,omitempty"`
	Categories   []string              `json:"categories"`
	Severity     string                `json:"severity"` // "high", "medium", "low"
	Role         string                `json:"role"`     // "signal", "context", ""
	IsEntryPoint bool                  `json:"is_entry_point,omitempty"`
}

// Edge kinds.
const (
	EdgeClosure = "closure" // call to a function of the same chunk
	EdgeAPI     = "api"     // call to a sensitive library function
)

// SignalEdge is an edge in the signal graph.
type SignalEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// SignalGraph is the complete signal graph.
type SignalGraph struct {
	Funcs []SignalFunc `json:"funcs"`
	Edges []SignalEdge `json:"edges"`
	Stats SignalStats  `json:"stats"`
}

// SignalStats holds summary statistics.
type SignalStats struct {
	TotalFuncs     int            `json:"total_funcs"`
	SignalFuncs    int            `json:"signal_funcs"`
	ContextFuncs   int            `json:"context_funcs"`
	TotalEdges     int            `json:"total_edges"`
	StringRefCount int            `json:"string_ref_count"`
	APICallCount   int            `json:"api_call_count"`
	Categories     map[string]int `json:"categories"`
}

// BuildSignalGraph constructs a signal graph from graph artifacts.
// k is the number of context hops kept around each signal function.
// entryPoints marks functions not called from inside the chunk (may be nil).
func BuildSignalGraph(
	funcs []disasm.FuncRecord,
	edges []disasm.CallEdgeRecord,
	stringRefs []disasm.StringRefRecord,
	k int,
	entryPoints map[string]bool,
) *SignalGraph {
	type funcSignal struct {
		refs       []ClassifiedStringRef
		calls      []APICall
		categories map[string]bool
	}
	funcSignals := make(map[string]*funcSignal)
	get := func(name string) *funcSignal {
		fs, ok := funcSignals[name]
		if !ok {
			fs = &funcSignal{categories: make(map[string]bool)}
			funcSignals[name] = fs
		}
		return fs
	}
	catCounts := make(map[string]int)
	mark := func(fs *funcSignal, cat string) {
		if !fs.categories[cat] {
			fs.categories[cat] = true
			catCounts[cat]++
		}
	}

	for _, sr := range stringRefs {
		cats := ClassifyString(sr.Value)
		if len(cats) == 0 {
			continue
		}
		fs := get(sr.Func)
		fs.refs = append(fs.refs, ClassifiedStringRef{
			Func:       sr.Func,
			PC:         sr.PC,
			Const:      sr.Const,
			Value:      sr.Value,
			Categories: cats,
		})
		for _, c := range cats {
			mark(fs, c)
		}
	}

	apiCalls := 0
	for _, e := range edges {
		if e.Func != "" || e.Callee == "" {
			continue
		}
		cat := ClassifyCallee(e.Callee)
		if cat == "" {
			continue
		}
		fs := get(e.FromFunc)
		fs.calls = append(fs.calls, APICall{PC: e.PC, Callee: e.Callee, Category: cat})
		mark(fs, cat)
		apiCalls++
	}

	signalSet := make(map[string]bool, len(funcSignals))
	for name := range funcSignals {
		signalSet[name] = true
	}

	// Closure calls in both directions for context expansion.
	fwd := make(map[string][]string)
	rev := make(map[string][]string)
	for _, e := range edges {
		if e.Func != "" {
			fwd[e.FromFunc] = append(fwd[e.FromFunc], e.Func)
			rev[e.Func] = append(rev[e.Func], e.FromFunc)
		}
	}

	// BFS k hops from signal functions, in name order for stable results.
	contextSet := make(map[string]bool)
	visited := make(map[string]bool)
	type queueItem struct {
		name  string
		depth int
	}
	var queue []queueItem
	for _, name := range sortedNames(signalSet) {
		visited[name] = true
		queue = append(queue, queueItem{name, 0})
	}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= k {
			continue
		}
		for _, adj := range [][]string{fwd[item.name], rev[item.name]} {
			for _, next := range adj {
				if !visited[next] {
					visited[next] = true
					contextSet[next] = true
					queue = append(queue, queueItem{next, item.depth + 1})
				}
			}
		}
	}

	allFuncs := make([]SignalFunc, 0, len(funcs))
	for _, f := range funcs {
		sf := SignalFunc{
			Name:         f.Name,
			Source:       f.Source,
			LineDefined:  f.LineDefined,
			Instructions: f.Instructions,
			IsEntryPoint: entryPoints[f.Name],
		}
		if signalSet[f.Name] {
			sf.Role = "signal"
		} else if contextSet[f.Name] {
			sf.Role = "context"
		}
		if fs, ok := funcSignals[f.Name]; ok {
			sf.StringRefs = fs.refs
			sf.APICalls = fs.calls
			sf.Categories = sortedNames(fs.categories)
			sf.Severity = MaxSeverity(sf.Categories)
		}
		allFuncs = append(allFuncs, sf)
	}

	// signal, then context, then the rest. Signal entry points first, then
	// by severity and category count.
	roleOrd := map[string]int{"signal": 0, "context": 1, "": 2}
	sevOrd := map[string]int{SeverityHigh: 0, SeverityMedium: 1, SeverityLow: 2, "": 3}
	sort.SliceStable(allFuncs, func(i, j int) bool {
		si, sj := &allFuncs[i], &allFuncs[j]
		if si.Role != sj.Role {
			return roleOrd[si.Role] < roleOrd[sj.Role]
		}
		if si.Role == "signal" && si.IsEntryPoint != sj.IsEntryPoint {
			return si.IsEntryPoint
		}
		if si.Severity != sj.Severity {
			return sevOrd[si.Severity] < sevOrd[sj.Severity]
		}
		if len(si.Categories) != len(sj.Categories) {
			return len(si.Categories) > len(sj.Categories)
		}
		return si.Name < sj.Name
	})

	// Every closure edge plus the sensitive API edges, deduplicated.
	var allEdges []SignalEdge
	seen := make(map[SignalEdge]bool)
	for _, e := range edges {
		var se SignalEdge
		switch {
		case e.Func != "":
			se = SignalEdge{From: e.FromFunc, To: e.Func, Kind: EdgeClosure}
		case e.Callee != "" && ClassifyCallee(e.Callee) != "":
			se = SignalEdge{From: e.FromFunc, To: e.Callee, Kind: EdgeAPI}
		default:
			continue
		}
		if seen[se] {
			continue
		}
		seen[se] = true
		allEdges = append(allEdges, se)
	}

	return &SignalGraph{
		Funcs: allFuncs,
		Edges: allEdges,
		Stats: SignalStats{
			TotalFuncs:     len(funcs),
			SignalFuncs:    len(signalSet),
			ContextFuncs:   len(contextSet),
			TotalEdges:     len(allEdges),
			StringRefCount: len(stringRefs),
			APICallCount:   apiCalls,
			Categories:     catCounts,
		},
	}
}

func sortedNames(m map[string]bool) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
