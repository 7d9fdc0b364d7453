package util

import (
	"bufio"
	"bytes"
)

var (
	pemBegin = []byte("-----BEGIN ")
	pemEnd   = []byte("-----END ")
)

// SplitPEM is a bufio.SplitFunc that yields one PEM block per token. Anything
// between blocks is skipped.
func SplitPEM(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, pemBegin)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep enough of the tail around in case a marker straddles reads
		if len(data) > len(pemBegin) {
			return len(data) - len(pemBegin), nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start:], pemEnd)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	end += start

	eol := bytes.IndexByte(data[end:], '\n')
	if eol == -1 {
		if !atEOF {
			return start, nil, nil
		}
		return len(data), data[start:], nil
	}
	end += eol + 1

	return end, data[start:end], nil
}

// PEMBlocks returns every PEM block found in b, in order.
func PEMBlocks(b []byte) [][]byte {
	var out [][]byte
	s := bufio.NewScanner(bytes.NewReader(b))
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	s.Split(SplitPEM)
	for s.Scan() {
		out = append(out, bytes.Clone(s.Bytes()))
	}
	return out
}
