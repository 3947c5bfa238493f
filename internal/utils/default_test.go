package utils

import "testing"

func TestDefaultValueReturnsFallbackOnZero(t *testing.T) {
	if got := DefaultValue("", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
	if got := DefaultValue(0, 42); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestDefaultValueReturnsValWhenNonZero(t *testing.T) {
	if got := DefaultValue("set", "fallback"); got != "set" {
		t.Errorf("got %q, want set", got)
	}
	if got := DefaultValue(7, 42); got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}
