package analytics

import (
	"fmt"

	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/internal/points"
)

// EventType is the closed set of tracked activity events. Dispatch is an
// exhaustive switch, so a new event type is a compile-visible change here
// and in Stat(), not a stray string.
type EventType int

const (
	EventMessageSent EventType = iota
	EventCallMade
	EventStreamMinute
	EventFriendAdded
	EventAgentCreated
	EventStreamHosted
)

var eventNames = map[EventType]string{
	EventMessageSent:  "message_sent",
	EventCallMade:     "call_made",
	EventStreamMinute: "stream_minute",
	EventFriendAdded:  "friend_added",
	EventAgentCreated: "agent_created",
	EventStreamHosted: "stream_hosted",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Stat maps the event to the lifetime counter it feeds.
func (t EventType) Stat() (points.Stat, bool) {
	switch t {
	case EventMessageSent:
		return points.StatMessagesSent, true
	case EventCallMade:
		return points.StatCallsMade, true
	case EventStreamMinute:
		return points.StatMinutesStreamed, true
	case EventFriendAdded:
		return points.StatFriendsCount, true
	case EventAgentCreated:
		return points.StatAgentsCreated, true
	case EventStreamHosted:
		return points.StatStreamsHosted, true
	}
	return 0, false
}

// ParseEventType maps a wire name to its event type.
func ParseEventType(name string) (EventType, error) {
	for t, n := range eventNames {
		if n == name {
			return t, nil
		}
	}
	return 0, &errors.ValidationError{Field: "type", Message: fmt.Sprintf("unknown event type %q", name)}
}

// Event is one tracked activity occurrence. Delta defaults to 1; stream
// minutes and friend removals use other values.
type Event struct {
	Type    EventType
	Address string
	Delta   int64
}
