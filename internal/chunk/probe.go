package chunk

import "bytes"

// ProbeHit is a chunk signature with a parseable header inside a host file.
type ProbeHit struct {
	Offset int    `json:"offset"`
	Header Header `json:"header"`
}

// Probe returns the offset of the first signature followed by a valid
// header, or -1 if none is found.
func Probe(data []byte) int {
	hits := probe(data, 1)
	if len(hits) == 0 {
		return -1
	}
	return hits[0].Offset
}

// ProbeAll returns every signature offset followed by a valid header.
func ProbeAll(data []byte) []ProbeHit {
	return probe(data, 0)
}

func probe(data []byte, limit int) []ProbeHit {
	var hits []ProbeHit
	for off := 0; off < len(data); {
		i := bytes.Index(data[off:], Signature[:])
		if i < 0 {
			break
		}
		off += i
		if h, _, err := ParseHeader(data[off:]); err == nil {
			hits = append(hits, ProbeHit{Offset: off, Header: h})
			if limit > 0 && len(hits) >= limit {
				break
			}
		}
		off += len(Signature)
	}
	return hits
}
