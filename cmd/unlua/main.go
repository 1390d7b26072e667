package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("unlua.cli")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = cmdScan(os.Args[2:])
	case "dump":
		err = cmdDump(os.Args[2:])
	case "asm":
		err = cmdAsm(os.Args[2:])
	case "roundtrip":
		err = cmdRoundtrip(os.Args[2:])
	case "index":
		err = cmdIndex(os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "render":
		err = cmdRender(os.Args[2:])
	case "signal":
		err = cmdSignal(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `unlua - Lua 5.1/5.2/5.3 bytecode indexer

Usage:
  unlua scan      --in <file> [--json] [--probe]        Print header and prototype summary
  unlua dump      --in <file> [--out <file.lasm>]       Disassemble one chunk to LASM
  unlua asm       --in <file.lasm> --out <file>         Assemble LASM back to bytecode
  unlua roundtrip --in <file> [<file>...]               Check decode/dump/assemble reproduces each file
  unlua index     [--project <dir>] [--workers <n>]     Index a project's chunks into its LASM cache
  unlua status    [--project <dir>]                     Print the last index run manifest
  unlua graph     --in <file> --out <dir>               Per-function CFGs, call edges and closure graph
  unlua render    --in <dir>                            Render callgraph, reachability and HTML from graph output
  unlua signal    --in <dir> [--k <n>]                  Classify strings and library calls, render signal graph

Flags:
  --in <path>        Input file or directory
  --out <path>       Output file or directory
  --max-depth <n>    Nested prototype cap (default 200)
  -v <n>             Log verbosity (0 = errors only)
`)
}

// logFlag registers the verbosity flag shared by every subcommand.
func logFlag(fs *flag.FlagSet) *int {
	return fs.Int("v", 0, "log verbosity (0 = errors only, 1 = notices, 2 = info, 3+ = debug)")
}

// configureLogging sets up commonlog. A non-empty path sends log output to
// that file instead of stderr.
func configureLogging(verbosity int, path string) {
	if path == "" {
		commonlog.Configure(verbosity, nil)
		return
	}
	commonlog.Configure(verbosity, &path)
}

// flagSet reports whether name was given on the command line.
func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
