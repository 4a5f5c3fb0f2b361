package ui

import (
	"testing"

	"github.com/curatorhq/curator/internal/monitor"
)

func TestMarkBadge(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state monitor.ItemState
		want  string
	}{
		{monitor.StateIdle, ""},
		{monitor.StateMoving, "MOVING"},
		{monitor.StateWorking, "WORKING"},
		{monitor.StateFollowup, "FINISHING"},
		{monitor.StateFailed, "FAILED"},
	}
	for _, tc := range cases {
		if got := markBadge(tc.state); got != tc.want {
			t.Errorf("markBadge(%q) = %q, want %q", tc.state, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a much longer string", 10, "a much ..."},
		{"abc", 0, ""},
		{"abcdef", 2, "ab"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestNextTheme_CyclesThroughAll(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	name := themeOrder[0]
	for range themeOrder {
		seen[name] = true
		name = NextTheme(name)
	}
	if name != themeOrder[0] {
		t.Fatalf("cycle did not wrap: ended at %q", name)
	}
	for _, want := range ThemeNames() {
		if !seen[want] {
			t.Fatalf("theme %q never visited", want)
		}
	}
}

func TestGetTheme_UnknownFallsBack(t *testing.T) {
	t.Parallel()

	theme := GetTheme("NoSuchTheme")
	if theme.Name != "Nightfox" {
		t.Fatalf("fallback theme = %q, want Nightfox", theme.Name)
	}
}
