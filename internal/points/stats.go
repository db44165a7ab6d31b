package points

import (
	"fmt"

	"github.com/spritzapp/spritz/internal/errors"
)

// Stat is the closed set of lifetime counters tracked per user. Each value
// maps to exactly one users column; adding a stat means adding a constant,
// a column case, and a name case, all checked at compile time by the
// exhaustive switches below.
type Stat int

const (
	StatMessagesSent Stat = iota
	StatCallsMade
	StatMinutesStreamed
	StatFriendsCount
	StatAgentsCreated
	StatStreamsHosted
)

// Column returns the users column backing the stat. The second return is
// false for values outside the closed set, which callers must reject before
// building SQL.
func (s Stat) Column() (string, bool) {
	switch s {
	case StatMessagesSent:
		return "messages_sent", true
	case StatCallsMade:
		return "calls_made", true
	case StatMinutesStreamed:
		return "minutes_streamed", true
	case StatFriendsCount:
		return "friends_count", true
	case StatAgentsCreated:
		return "agents_created", true
	case StatStreamsHosted:
		return "streams_hosted", true
	}
	return "", false
}

func (s Stat) String() string {
	name, ok := s.Column()
	if !ok {
		return fmt.Sprintf("Stat(%d)", int(s))
	}
	return name
}

// ParseStat maps the wire name of a stat to its enum value.
func ParseStat(name string) (Stat, error) {
	for _, s := range []Stat{
		StatMessagesSent,
		StatCallsMade,
		StatMinutesStreamed,
		StatFriendsCount,
		StatAgentsCreated,
		StatStreamsHosted,
	} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, &errors.ValidationError{Field: "stat", Message: fmt.Sprintf("unknown stat %q", name)}
}
