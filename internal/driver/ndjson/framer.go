// Package ndjson implements a newline-delimited-JSON line framer shared by
// every backend that talks to a child process over stdout. It generalizes
// the ad hoc bufio.Scanner + json.Unmarshal loop each backend used to write
// for itself into one reusable, chunk-fed component.
package ndjson

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Result is one line's outcome. Exactly one of Value or Err is set when OK
// is respectively true or false; RawLine is always the line text (minus
// its trailing newline and any trailing \r) that produced this result.
type Result struct {
	OK      bool
	Value   map[string]any
	Err     error
	RawLine string
}

// Framer turns a sequence of arbitrarily-chunked byte slices into a
// lazy, finite sequence of line-level Results. It never raises: a line
// that fails to parse as JSON produces a failed Result, it does not stop
// the framer from processing subsequent lines. Blank and whitespace-only
// lines are skipped entirely (neither OK nor failed).
//
// A Framer is not safe for concurrent use; each backend instance owns one.
type Framer struct {
	buf strings.Builder
}

// New returns an empty Framer.
func New() *Framer {
	return &Framer{}
}

// Feed appends chunk to the framer's pending partial line and returns a
// Result for every complete line chunk contains. Text after the last
// newline in chunk (if any) is retained for the next Feed or Close call.
func (f *Framer) Feed(chunk []byte) []Result {
	f.buf.Write(chunk)
	pending := f.buf.String()

	var results []Result
	for {
		idx := strings.IndexByte(pending, '\n')
		if idx < 0 {
			break
		}
		line := pending[:idx]
		pending = pending[idx+1:]
		if r, ok := parseLine(line); ok {
			results = append(results, r)
		}
	}

	f.buf.Reset()
	f.buf.WriteString(pending)
	return results
}

// Close flushes any residual partial line as a final line (per the
// framing contract, a non-empty residual at end-of-stream is still
// parsed) and resets the framer. It returns at most one Result.
func (f *Framer) Close() []Result {
	pending := f.buf.String()
	f.buf.Reset()

	if r, ok := parseLine(pending); ok {
		return []Result{r}
	}
	return nil
}

func parseLine(line string) (Result, bool) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return Result{}, false
	}

	var v map[string]any
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		return Result{OK: false, Err: err, RawLine: line}, true
	}
	return Result{OK: true, Value: v, RawLine: line}, true
}

// ReadAll drains r in fixed-size chunks through a Framer and returns every
// Result in order, including the final residual line (if any). It is a
// convenience for backends that already hold a complete io.Reader (a
// stdout pipe) rather than receiving chunks piecemeal; io errors other
// than io.EOF abort the read but still return the Results collected so
// far alongside the error.
func ReadAll(r io.Reader) ([]Result, error) {
	f := New()
	var results []Result

	buf := make([]byte, 64*1024)
	br := bufio.NewReader(r)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			results = append(results, f.Feed(buf[:n])...)
		}
		if err != nil {
			if err == io.EOF {
				results = append(results, f.Close()...)
				return results, nil
			}
			return results, err
		}
	}
}
