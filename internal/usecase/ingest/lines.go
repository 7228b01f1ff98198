package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// MaxLineLength caps a single JSONL line; longer lines are reported as too long
// and skipped without aborting the file.
const MaxLineLength = 16 << 20

const readBufferSize = 64 << 10

// scanLines calls fn for every line of r with its 1-based number. Unlike
// bufio.Scanner it survives lines longer than maxLen.
func scanLines(r io.Reader, maxLen int, fn func(n int, line []byte, tooLong bool)) error {
	br := bufio.NewReaderSize(r, readBufferSize)
	var buf []byte
	n := 0
	tooLong := false

	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read line %d: %w", n+1, err)
		}

		if !tooLong {
			if len(buf)+len(chunk) > maxLen {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if isPrefix {
			continue
		}

		n++
		fn(n, buf, tooLong)
		buf = buf[:0]
		tooLong = false
	}
}
