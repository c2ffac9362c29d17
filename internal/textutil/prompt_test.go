package textutil

import "testing"

func TestDetectPromptSimple(t *testing.T) {
	buf := "some banner text\nrouter1#"
	if got := DetectPrompt(buf); got != "router1#" {
		t.Fatalf("got %q", got)
	}
}

func TestDetectPromptRejectsLongLine(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "x"
	}
	long += "#"
	if got := DetectPrompt(long); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestDetectPromptRejectsNoEnding(t *testing.T) {
	if got := DetectPrompt("just some text"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestDetectPromptCollapsesRepeatedToken(t *testing.T) {
	if got := DetectPrompt("router1# router1# router1#"); got != "router1#" {
		t.Fatalf("got %q", got)
	}
}

func TestDetectPromptNeverContainsNewline(t *testing.T) {
	got := DetectPrompt("line one\nline two\nswitch1>")
	for _, c := range got {
		if c == '\n' {
			t.Fatal("prompt contains newline")
		}
	}
}
