// Package chatstream consumes the chat function's text/event-stream response.
//
// Decoder is a pure state machine over raw bytes: Feed it chunks as they arrive
// and it returns the events completed by that chunk. Lines are reassembled at
// the byte level, so multi-byte UTF-8 characters split across chunks are never
// truncated ('\n' cannot occur inside a multi-byte sequence).
package chatstream

import (
	"bytes"
	"encoding/json"
)

type EventType int

const (
	EventDelta EventType = iota
	EventDone
)

type Event struct {
	Type    EventType
	Content string
}

const (
	dataPrefix  = "data: "
	donePayload = "[DONE]"
)

type chunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder reassembles SSE lines and extracts choices[0].delta.content.
// The zero value is ready to use.
type Decoder struct {
	buf  []byte
	done bool
	// retrying is set when the first buffered line failed to parse and is
	// waiting for the next chunk before being tried once more.
	retrying bool
}

// Done reports whether [DONE] was seen or Flush was called.
func (d *Decoder) Done() bool {
	return d.done
}

// Feed appends p and returns the events of every line completed so far.
// After [DONE] the remaining input is ignored.
func (d *Decoder) Feed(p []byte) []Event {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, p...)

	var events []Event
	for !d.done {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}

		ev, ok, parsed := d.parseLine(d.buf[:i])
		if !parsed {
			if !d.retrying {
				// Keep the line at the front of the buffer and retry on the next chunk.
				d.retrying = true
				break
			}
			// Second failure: the line is complete and still not JSON. Skip it.
		}
		d.retrying = false
		d.buf = d.buf[i+1:]

		if ok {
			events = append(events, ev)
		}
	}

	return events
}

// Flush parses whatever is left after the stream ended, including a final line
// without a newline, and finishes with EventDone unless [DONE] was already seen.
func (d *Decoder) Flush() []Event {
	if d.done {
		return nil
	}

	var events []Event
	for _, line := range bytes.Split(d.buf, []byte{'\n'}) {
		ev, ok, _ := d.parseLine(line)
		if ok {
			events = append(events, ev)
		}
		if d.done {
			break
		}
	}

	d.buf = nil
	if !d.done {
		d.done = true
		events = append(events, Event{Type: EventDone})
	}
	return events
}

// parseLine interprets one line. ok reports whether an event was produced;
// parsed is false only for a data line whose payload is not valid JSON.
func (d *Decoder) parseLine(line []byte) (ev Event, ok bool, parsed bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})

	if len(line) == 0 || line[0] == ':' {
		return Event{}, false, true
	}
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Event{}, false, true
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == donePayload {
		d.done = true
		return Event{Type: EventDone}, true, true
	}

	var c chunk
	if err := json.Unmarshal(payload, &c); err != nil {
		return Event{}, false, false
	}

	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == nil || *c.Choices[0].Delta.Content == "" {
		return Event{}, false, true
	}
	return Event{Type: EventDelta, Content: *c.Choices[0].Delta.Content}, true, true
}
