// Package sse reads Server-Sent Events from an upstream response body.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one dispatched SSE event.
type Event struct {
	Name string // "event:" field, empty when absent
	Data string // "data:" lines joined with "\n"
}

// Reader parses an event stream line by line.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next event that carries data. It returns io.EOF once the
// stream is exhausted; an event left unterminated at EOF is still dispatched.
// Any other read error is returned as is.
func (r *Reader) Next() (Event, error) {
	var (
		name string
		data []string
	)
	for {
		line, err := r.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return Event{}, err
		}
		eof := err == io.EOF

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if len(data) > 0 {
				return Event{Name: name, Data: strings.Join(data, "\n")}, nil
			}
			name = ""
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				name = value
			case "data":
				data = append(data, value)
			}
		}

		if eof {
			if len(data) > 0 {
				return Event{Name: name, Data: strings.Join(data, "\n")}, nil
			}
			return Event{}, io.EOF
		}
	}
}
