package langdetect

import "testing"

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" NL_be ": "nl",
		"en-US":   "en",
		"nl":      "nl",
		" ":       "",
		"n1":      "",
	}
	for in, want := range tests {
		if got := NormalizeCode(in); got != want {
			t.Fatalf("unexpected code for %q: got %q want %q", in, got, want)
		}
	}
}

func TestDisabledGuardAcceptsEverything(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"", "xx"} {
		g := NewGuard(code)
		if g.Enabled() {
			t.Fatalf("expected guard for %q to be disabled", code)
		}
		if !g.Accept("This sentence is clearly written in English.") {
			t.Fatalf("disabled guard rejected text")
		}
	}
}

func TestGuardDutch(t *testing.T) {
	t.Parallel()

	g := NewGuard("nl")
	if !g.Enabled() || g.Target() != "nl" {
		t.Fatalf("unexpected guard: enabled=%v target=%q", g.Enabled(), g.Target())
	}

	if !g.Accept("De bloemenveiling in Aalsmeer was vandaag drukker dan ooit tevoren") {
		t.Fatalf("expected Dutch text to pass")
	}
	if g.Accept("The flower auction was busier than ever before and prices went up sharply") {
		t.Fatalf("expected English text to be rejected")
	}
	if !g.Accept("ok :)") {
		t.Fatalf("expected short text to pass")
	}
}
