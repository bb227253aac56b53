package cli

import (
	"bufio"
	"context"
	"io"
)

type line struct {
	text string
	err  error
}

// LineReader reads lines in the background so a read can be abandoned
// when its context is done without losing buffered input.
type LineReader struct {
	lines chan line
}

func NewLineReader(rd io.Reader) *LineReader {
	r := &LineReader{lines: make(chan line)}

	go func() {
		defer close(r.lines)

		scanner := bufio.NewScanner(rd)
		for scanner.Scan() {
			r.lines <- line{text: scanner.Text()}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		r.lines <- line{err: err}
	}()

	return r
}

// ReadLine returns the next line without its newline.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	}
}
