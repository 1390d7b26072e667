package render

// Theme holds colors for graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Call edge colors by callee provenance.
	EdgeClosure    string // nested function of the same chunk
	EdgeGlobal     string // global function
	EdgeField      string // table field (lib.fn)
	EdgeMethod     string // method call (obj:m)
	EdgeUnresolved string // callee register had no known origin

	// CFG edge colors.
	EdgeTaken string // branch taken
	EdgeFall  string // branch not taken
	EdgeFlow  string // unconditional

	// Node accents.
	TermFill     string // blocks that leave the function
	ExternalText string // callees outside the chunk

	// Cluster styling.
	ClusterBorder string
	ClusterLabel  string
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeClosure:    "#0B3D91", // NASA blue
	EdgeGlobal:     "#424242", // dark gray
	EdgeField:      "#00695C", // teal
	EdgeMethod:     "#E65100", // deep orange
	EdgeUnresolved: "#FC3D21", // NASA red

	EdgeTaken: "#0B3D91",
	EdgeFall:  "#FC3D21",
	EdgeFlow:  "#424242",

	TermFill:     "#ECEFF1", // blue-gray 50
	ExternalText: "#9E9E9E",

	ClusterBorder: "#BDBDBD",
	ClusterLabel:  "#757575",
}

// Dark is a low-glare variant for dark viewers.
var Dark = Theme{
	Background: "#121212",
	NodeFill:   "#1E1E1E",
	NodeBorder: "#9E9E9E",
	TextColor:  "#E0E0E0",

	EdgeClosure:    "#82B1FF",
	EdgeGlobal:     "#BDBDBD",
	EdgeField:      "#64FFDA",
	EdgeMethod:     "#FFAB40",
	EdgeUnresolved: "#FF5252",

	EdgeTaken: "#82B1FF",
	EdgeFall:  "#FF5252",
	EdgeFlow:  "#BDBDBD",

	TermFill:     "#263238",
	ExternalText: "#757575",

	ClusterBorder: "#424242",
	ClusterLabel:  "#9E9E9E",
}

// ThemeByName returns the named theme, or NASA for unknown names.
func ThemeByName(name string) Theme {
	if name == "dark" {
		return Dark
	}
	return NASA
}
