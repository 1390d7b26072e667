package luafmt

import "errors"

// Error taxonomy shared by the decoder, disassembler, codec and pipeline.
// Callers classify with errors.Is; every returned error wraps one of these.
var (
	ErrMalformedHeader    = errors.New("malformed header")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrTruncatedInput     = errors.New("truncated input")
	ErrCorruptOperand     = errors.New("corrupt operand")
	ErrCacheWriteFailure  = errors.New("cache write failure")
	ErrMalformedChunk     = errors.New("malformed chunk")
)

// Kind returns the short taxonomy name of err, or "error" when err wraps
// none of the sentinels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedHeader):
		return "MalformedHeader"
	case errors.Is(err, ErrUnsupportedVersion):
		return "UnsupportedVersion"
	case errors.Is(err, ErrTruncatedInput):
		return "TruncatedInput"
	case errors.Is(err, ErrCorruptOperand):
		return "CorruptOperand"
	case errors.Is(err, ErrCacheWriteFailure):
		return "CacheWriteFailure"
	case errors.Is(err, ErrMalformedChunk):
		return "MalformedChunk"
	}
	return "error"
}
