// Package deathlog parses Deadside death-log records and fetches the
// log files they live in from game-server hosts.
//
// A death log is a comma-joined record with at least five fields:
//
//	timestamp,killer,victim,weapon,distance[,extra...]
//
// Extra fields are ignored. The format has no quoting, so lines are
// split directly on commas.
package deathlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

const minFields = 5

// spaceTimeLayout is the fallback timestamp format, always UTC.
const spaceTimeLayout = "2006-01-02 15:04:05"

var (
	// ErrMalformedRecord marks a line with too few fields.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrUnparseableTimestamp marks a line whose first field matches no
	// known timestamp format.
	ErrUnparseableTimestamp = errors.New("unparseable timestamp")
)

// ParseLine parses a single death-log line into a kill event. The raw
// line is carried on the event for auditing and dedup. Parsing is pure:
// no I/O, no clock reads, same input always gives the same output.
//
// A suicide is a record whose killer and victim match, or whose weapon
// starts with "suicide" in any casing. Suicide weapons are rewritten to
// the canonical markers: menu relocation kills become "Menu Suicide",
// everything else "Suicide".
func ParseLine(line string) (*domain.KillEvent, error) {
	fields := strings.Split(line, ",")
	if len(fields) < minFields {
		return nil, fmt.Errorf("%w: %d fields, want at least %d", ErrMalformedRecord, len(fields), minFields)
	}
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}

	ts, err := parseTimestamp(fields[0])
	if err != nil {
		return nil, err
	}

	killer := fields[1]
	victim := fields[2]
	weapon := fields[3]

	suicide := killer == victim || strings.HasPrefix(strings.ToLower(weapon), "suicide")
	if suicide {
		if strings.Contains(strings.ToLower(weapon), "relocation") {
			weapon = domain.WeaponMenuSuicide
		} else {
			weapon = domain.WeaponSuicide
		}
	}

	return &domain.KillEvent{
		Timestamp: ts,
		Killer:    killer,
		Victim:    victim,
		Weapon:    weapon,
		Distance:  parseDistance(fields[4]),
		IsSuicide: suicide,
		RawLine:   line,
	}, nil
}

// parseTimestamp tries RFC 3339 first, then the space-separated layout
// interpreted as UTC. Offset timestamps normalize to UTC.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.ParseInLocation(spaceTimeLayout, s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTimestamp, s)
}

// parseDistance is best-effort: "N/A", empty and junk all collapse to 0.
func parseDistance(s string) float64 {
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return d
}
