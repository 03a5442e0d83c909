package drbd

import (
	"fmt"
	"strings"
	"time"
)

// NotLoaded is the line the watch command prints when the kernel module is
// missing.
const NotLoaded = "nm"

// EventResult is either an *Event or an *UnparsedEvent.
type EventResult interface {
	isEventResult()
}

// Event is one events2 line, e.g.
//
//	2024-01-01T10:00:00.000000+00:00 change device name:r0 volume:0 disk:UpToDate
//
// The timestamp is optional.
type Event struct {
	Timestamp time.Time
	Kind      string
	Object    string
	State     map[string]string
}

var _ EventResult = &Event{}

func (*Event) isEventResult() {}

// Resource is the resource name carried by the event.
func (e *Event) Resource() string { return e.State["name"] }

// Volume is the volume number carried by the event, "0" when absent.
func (e *Event) Volume() string {
	if v, ok := e.State["volume"]; ok {
		return v
	}
	return "0"
}

type UnparsedEvent struct {
	RawEventLine string
	Err          error
}

var _ EventResult = &UnparsedEvent{}

func (*UnparsedEvent) isEventResult() {}

// ParseEvent parses a single events2 line.
func ParseEvent(line string) EventResult {
	fields := strings.Fields(line)
	if len(fields) > 0 {
		if ts, err := time.Parse(time.RFC3339Nano, fields[0]); err == nil {
			ev := parseFields(line, fields[1:])
			if e, ok := ev.(*Event); ok {
				e.Timestamp = ts
			}
			return ev
		}
	}
	return parseFields(line, fields)
}

func parseFields(line string, fields []string) EventResult {
	// "exists -" closes the initial state dump
	if len(fields) == 2 && fields[1] == "-" {
		return &Event{Kind: fields[0], Object: "-", State: map[string]string{}}
	}
	if len(fields) < 2 {
		return &UnparsedEvent{
			RawEventLine: line,
			Err:          fmt.Errorf("line has fewer than 2 fields"),
		}
	}

	state := make(map[string]string)
	for _, kv := range fields[2:] {
		parts := strings.SplitN(kv, ":", 2)
		if len(parts) != 2 {
			return &UnparsedEvent{
				RawEventLine: line,
				Err:          fmt.Errorf("invalid key-value pair: %s", kv),
			}
		}
		state[parts[0]] = parts[1]
	}

	return &Event{
		Kind:   fields[0],
		Object: fields[1],
		State:  state,
	}
}
