package utils

import (
	"errors"
	"testing"
)

func TestParsePhoneShapes(t *testing.T) {
	cases := []string{
		"(415) 555-2671",
		"415-555-2671",
		"4155552671",
		"+1 415 555 2671",
	}
	for _, raw := range cases {
		p, err := ParsePhone(raw)
		if err != nil {
			t.Fatalf("ParsePhone(%q): %v", raw, err)
		}
		if got := FormatE164(p); got != "+14155552671" {
			t.Fatalf("ParsePhone(%q) normalized to %q", raw, got)
		}
		if !IsRegionNumber(p) {
			t.Fatalf("ParsePhone(%q) should be a valid US number", raw)
		}
	}
}

func TestParsePhoneEmpty(t *testing.T) {
	if _, err := ParsePhone("   "); !errors.Is(err, ErrPhoneEmpty) {
		t.Fatalf("expected ErrPhoneEmpty, got %v", err)
	}
}

func TestParsePhoneGarbage(t *testing.T) {
	if _, err := ParsePhone("not a phone"); err == nil {
		t.Fatal("expected parse error for garbage input")
	}
}

func TestForeignNumberFailsRegionCheck(t *testing.T) {
	p, err := ParsePhone("+447911123456")
	if err != nil {
		t.Fatalf("UK number should parse: %v", err)
	}
	if IsRegionNumber(p) {
		t.Fatal("UK number must fail the US region check")
	}
}
