// Package seqstat summarizes FASTA sequence data.
package seqstat

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Stats describes a FASTA payload.
type Stats struct {
	Bytes    int64
	Records  int
	Residues int64
	// IDs holds the first word of each header line, in order. Sequence data
	// that appears before any header counts as one record with an empty id.
	IDs []string
}

// maxLine bounds a single FASTA line.
const maxLine = 1 << 20

// Summarize reads r to the end and counts records and residues. Lines
// starting with ';' are comments. Residues may be letters, '*' or '-'.
func Summarize(r io.Reader) (Stats, error) {
	var st Stats
	counter := &countingReader{r: r}
	sc := bufio.NewScanner(counter)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	inRecord := false
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		switch {
		case len(line) == 0, line[0] == ';':
			continue
		case line[0] == '>':
			st.Records++
			st.IDs = append(st.IDs, headerID(line[1:]))
			inRecord = true
		default:
			if !inRecord {
				st.Records++
				st.IDs = append(st.IDs, "")
				inRecord = true
			}
			for i, c := range line {
				if !isResidue(c) {
					return st, fmt.Errorf("line %d: invalid residue %q at column %d", lineNo, c, i+1)
				}
			}
			st.Residues += int64(len(line))
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read sequence: %w", err)
	}
	st.Bytes = counter.n
	return st, nil
}

func headerID(h []byte) string {
	h = bytes.TrimSpace(h)
	if i := bytes.IndexAny(h, " \t"); i >= 0 {
		h = h[:i]
	}
	return string(h)
}

func isResidue(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '*' || c == '-'
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
