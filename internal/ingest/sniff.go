// Package ingest detects delimiters and loads CSV files into tables.
package ingest

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/KaramelBytes/csvagent/internal/apperr"
)

// DefaultDelimiter is used when sniffing is inconclusive.
const DefaultDelimiter = ','

// Candidates are the delimiters considered by Sniff, in tie-break order.
var Candidates = []rune{',', ';', '\t', '|'}

// Decode reads r as UTF-8, stripping a leading BOM and replacing invalid
// byte sequences with U+FFFD.
func Decode(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
}

// DecodeSample decodes a raw byte sample. When truncated is set the trailing
// partial line is dropped.
func DecodeSample(b []byte, truncated bool) (string, error) {
	out, err := io.ReadAll(Decode(strings.NewReader(string(b))))
	if err != nil {
		return "", fmt.Errorf("decode sample: %w", err)
	}
	s := string(out)
	if truncated {
		if i := strings.LastIndexByte(s, '\n'); i >= 0 {
			s = s[:i+1]
		}
	}
	return s, nil
}

type candidateScore struct {
	delim       rune
	mode        int
	matches     int
	consistency float64
}

// Sniff infers the field delimiter of a sample. Each candidate is counted per
// line outside quoted sections; the winner has the most lines sharing its
// modal non-zero count. At least two lines must agree.
func Sniff(sample string) (rune, error) {
	lines := sampleLines(sample)
	var best *candidateScore
	for _, d := range Candidates {
		sc := scoreCandidate(d, lines)
		if sc.mode == 0 || sc.matches < 2 {
			continue
		}
		if best == nil || better(sc, *best) {
			cp := sc
			best = &cp
		}
	}
	if best == nil {
		return 0, fmt.Errorf("no consistent delimiter among %q across %d lines: %w",
			string(Candidates), len(lines), apperr.ErrDelimiterUndetectable)
	}
	return best.delim, nil
}

func better(a, b candidateScore) bool {
	if a.consistency != b.consistency {
		return a.consistency > b.consistency
	}
	return a.mode > b.mode
}

// sampleLines splits a sample into records. A newline inside a quoted field
// does not end the record.
func sampleLines(sample string) []string {
	sample = strings.ReplaceAll(sample, "\r\n", "\n")
	var lines []string
	var cur strings.Builder
	inQuotes := false
	prev := '\n'
	flush := func() {
		if l := cur.String(); strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
		cur.Reset()
	}
	for _, r := range sample {
		if r == '\n' && !inQuotes {
			flush()
			prev = r
			continue
		}
		inQuotes = quoteState(r, prev, inQuotes)
		cur.WriteRune(r)
		prev = r
	}
	flush()
	return lines
}

// quoteState returns the quoting state after r. A quote opens a field only at
// the start of a record, after a candidate delimiter or a space, or right
// after a quote (an escaped ""), so a stray inch mark in unquoted text is
// literal.
func quoteState(r, prev rune, inQuotes bool) bool {
	if r != '"' {
		return inQuotes
	}
	if inQuotes {
		return false
	}
	return prev == '\n' || prev == ' ' || prev == '"' || isCandidate(prev)
}

func isCandidate(r rune) bool {
	for _, c := range Candidates {
		if r == c {
			return true
		}
	}
	return false
}

func scoreCandidate(d rune, lines []string) candidateScore {
	freq := map[int]int{}
	for _, l := range lines {
		freq[countOutsideQuotes(l, d)]++
	}
	sc := candidateScore{delim: d}
	for count, n := range freq {
		if count == 0 {
			continue
		}
		if n > sc.matches || (n == sc.matches && count > sc.mode) {
			sc.mode, sc.matches = count, n
		}
	}
	if len(lines) > 0 {
		sc.consistency = float64(sc.matches) / float64(len(lines))
	}
	return sc
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	inQuotes := false
	prev := '\n'
	for _, r := range line {
		if r == d && !inQuotes {
			n++
		}
		inQuotes = quoteState(r, prev, inQuotes)
		prev = r
	}
	return n
}
