package textcodec

import (
	"testing"
)

func TestParseDiscardsShortAndEmptyLines(t *testing.T) {
	buf := []byte("action|log\n\nlonelytoken\nmsg|hello|world\n")
	text := Parse(buf, '|')
	entries := text.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(entries), entries)
	}
	if entries[0].Key != "action" || entries[0].Values[0] != "log" {
		t.Fatalf("unexpected first record: %+v", entries[0])
	}
	if entries[1].Key != "msg" || entries[1].Values[0] != "hello" || entries[1].Values[1] != "world" {
		t.Fatalf("unexpected second record: %+v", entries[1])
	}
}

func TestEmitRoundTrip(t *testing.T) {
	text := New('|')
	text.Set("server", "1.2.3.4")
	text.Set("port", "17091")
	got := string(text.Emit())
	want := "server|1.2.3.4\nport|17091"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSetReplacesFirstMatch(t *testing.T) {
	text := Parse([]byte("a|1\nb|2\na|3\n"), '|')
	text.Set("a", "99")
	if got := text.Get("a", 0); got != "99" {
		t.Fatalf("got %q", got)
	}
	if len(text.Entries()) != 3 {
		t.Fatalf("expected set to replace in place, not append")
	}
}

func TestGetIntFallback(t *testing.T) {
	text := Parse([]byte("port|notanumber\n"), '|')
	if got := text.GetInt("port", 0, -1); got != -1 {
		t.Fatalf("got %d want -1", got)
	}
	text2 := Parse([]byte("port|17091\n"), '|')
	if got := text2.GetInt("port", 0, -1); got != 17091 {
		t.Fatalf("got %d want 17091", got)
	}
}

func TestContainsAndRemove(t *testing.T) {
	text := Parse([]byte("#maint|1\nmaint|1\nserver|a\n"), '|')
	if !text.Contains("#maint") || !text.Contains("maint") {
		t.Fatalf("expected both keys present")
	}
	text.Remove("#maint")
	text.Remove("maint")
	if text.Contains("#maint") || text.Contains("maint") {
		t.Fatalf("expected keys removed")
	}
	if text.Empty() {
		t.Fatalf("expected server record to remain")
	}
}

func TestPreservesEmptyNonLeadingTokens(t *testing.T) {
	text := Parse([]byte("key||value\n"), '|')
	if got := text.Get("key", 0); got != "" {
		t.Fatalf("expected preserved empty token, got %q", got)
	}
	if got := text.Get("key", 1); got != "value" {
		t.Fatalf("got %q", got)
	}
}

func TestEntriesIsIndependentCopy(t *testing.T) {
	text := Parse([]byte("a|1\n"), '|')
	entries := text.Entries()
	entries[0].Key = "mutated"
	if text.Get("a", 0) != "1" {
		t.Fatalf("internal state was mutated through Entries()")
	}
}
