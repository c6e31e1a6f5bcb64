package llm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var errStreamStopped = errors.New("stream stopped by handler")

const maxEventLine = 1 << 20

// readEventStream scans a text/event-stream body and hands each data payload to fn.
// Returning false from fn stops the scan; readEventStream then reports errStreamStopped.
func readEventStream(body io.Reader, fn func(data string) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		if !fn(strings.TrimSpace(strings.TrimPrefix(line, "data:"))) {
			return errStreamStopped
		}
	}
	return scanner.Err()
}
