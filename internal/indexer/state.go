package indexer

import "fmt"

// State is the position of one file in the indexing state machine:
//
//	Pending -> Decoding -> Disassembling -> Dumping -> Cached
//	Pending -> SkippedCached
//	any non-terminal state -> Failed
type State uint8

const (
	Pending State = iota
	Decoding
	Disassembling
	Dumping
	Cached
	SkippedCached
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Decoding:
		return "decoding"
	case Disassembling:
		return "disassembling"
	case Dumping:
		return "dumping"
	case Cached:
		return "cached"
	case SkippedCached:
		return "skipped-cached"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Terminal reports whether s ends a file's run.
func (s State) Terminal() bool {
	return s == Cached || s == SkippedCached || s == Failed
}

// stagesPerFile is the number of progress increments each file contributes.
const stagesPerFile = 3

// credit returns how many of a file's progress increments are complete
// once it has entered s.
func (s State) credit() int {
	switch s {
	case Disassembling:
		return 1
	case Dumping:
		return 2
	case Cached, SkippedCached, Failed:
		return stagesPerFile
	}
	return 0
}

// canEnter reports whether a file in state s may move to next.
func (s State) canEnter(next State) bool {
	switch next {
	case Decoding, SkippedCached:
		return s == Pending
	case Disassembling:
		return s == Decoding
	case Dumping:
		return s == Disassembling
	case Cached:
		return s == Dumping
	case Failed:
		return !s.Terminal()
	}
	return false
}
