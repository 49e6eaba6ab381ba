package deathlog

import (
	"errors"
	"testing"
	"time"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
)

func TestParseLineKill(t *testing.T) {
	line := "2024-01-01T00:00:00Z,Alice,Bob,AK74,150.5"
	ev, err := ParseLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Killer != "Alice" || ev.Victim != "Bob" {
		t.Fatalf("unexpected players: %+v", ev)
	}
	if ev.Weapon != "AK74" {
		t.Fatalf("weapon = %q, want AK74", ev.Weapon)
	}
	if ev.Distance != 150.5 {
		t.Fatalf("distance = %v, want 150.5", ev.Distance)
	}
	if ev.IsSuicide {
		t.Fatalf("kill flagged as suicide")
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", ev.Timestamp, want)
	}
	if ev.RawLine != line {
		t.Fatalf("raw line not preserved: %q", ev.RawLine)
	}
}

func TestParseLineMenuSuicide(t *testing.T) {
	ev, err := ParseLine("2024-01-01T00:00:00Z,Carl,Carl,Suicide_by_relocation,N/A")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ev.IsSuicide {
		t.Fatalf("expected suicide")
	}
	if ev.Weapon != domain.WeaponMenuSuicide {
		t.Fatalf("weapon = %q, want %q", ev.Weapon, domain.WeaponMenuSuicide)
	}
	if ev.Distance != 0 {
		t.Fatalf("distance = %v, want 0", ev.Distance)
	}
}

func TestParseLineSuicideByWeaponPrefix(t *testing.T) {
	// Different killer and victim, but the weapon marks it.
	ev, err := ParseLine("2024-01-01T00:00:00Z,Alice,Bob,SUICIDE_pill,0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ev.IsSuicide {
		t.Fatalf("expected suicide from weapon prefix")
	}
	if ev.Weapon != domain.WeaponSuicide {
		t.Fatalf("weapon = %q, want %q", ev.Weapon, domain.WeaponSuicide)
	}
}

func TestParseLineSelfKillRewritesWeapon(t *testing.T) {
	ev, err := ParseLine("2024-01-01T00:00:00Z,Dana,Dana,Grenade,3.2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ev.IsSuicide {
		t.Fatalf("expected suicide when killer equals victim")
	}
	if ev.Weapon != domain.WeaponSuicide {
		t.Fatalf("weapon = %q, want %q", ev.Weapon, domain.WeaponSuicide)
	}
}

func TestParseLineFallingPassesThrough(t *testing.T) {
	ev, err := ParseLine("2024-01-01T00:00:00Z,Alice,Bob,Falling,0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.IsSuicide {
		t.Fatalf("environment kill flagged as suicide")
	}
	if ev.Weapon != domain.WeaponFalling {
		t.Fatalf("weapon = %q, want %q", ev.Weapon, domain.WeaponFalling)
	}
}

func TestParseLineSpaceTimestampIsUTC(t *testing.T) {
	ev, err := ParseLine("2024-06-15 12:30:45,Alice,Bob,MR5,88")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2024, 6, 15, 12, 30, 45, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestParseLineOffsetTimestampNormalizes(t *testing.T) {
	ev, err := ParseLine("2024-01-01T02:00:00+02:00,Alice,Bob,AK74,10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) || ev.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp = %v, want %v UTC", ev.Timestamp, want)
	}
}

func TestParseLineMalformed(t *testing.T) {
	for _, line := range []string{
		"2024-01-01T00:00:00Z,Alice,Bob,AK74",
		"just some text",
		"",
	} {
		if _, err := ParseLine(line); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("ParseLine(%q) err = %v, want ErrMalformedRecord", line, err)
		}
	}
}

func TestParseLineBadTimestamp(t *testing.T) {
	_, err := ParseLine("yesterday,Alice,Bob,AK74,150.5")
	if !errors.Is(err, ErrUnparseableTimestamp) {
		t.Fatalf("err = %v, want ErrUnparseableTimestamp", err)
	}
}

func TestParseLineDistance(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"150.5", 150.5},
		{"0", 0},
		{"N/A", 0},
		{"", 0},
		{"far away", 0},
	}
	for _, tc := range tests {
		line := "2024-01-01T00:00:00Z,Alice,Bob,AK74," + tc.raw
		ev, err := ParseLine(line)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", line, err)
		}
		if ev.Distance != tc.want {
			t.Errorf("distance for %q = %v, want %v", tc.raw, ev.Distance, tc.want)
		}
	}
}

func TestParseLineTrimsFieldsAndIgnoresExtras(t *testing.T) {
	ev, err := ParseLine("2024-01-01T00:00:00Z, Alice , Bob , AK74 , 12.5 ,extra,fields")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Killer != "Alice" || ev.Victim != "Bob" || ev.Weapon != "AK74" {
		t.Fatalf("fields not trimmed: %+v", ev)
	}
	if ev.Distance != 12.5 {
		t.Fatalf("distance = %v, want 12.5", ev.Distance)
	}
}

func TestParseLineDeterministic(t *testing.T) {
	line := "2024-01-01T00:00:00Z,Alice,Bob,AK74,150.5"
	a, err := ParseLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := ParseLine(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *a != *b {
		t.Fatalf("same line parsed differently: %+v vs %+v", a, b)
	}
}
