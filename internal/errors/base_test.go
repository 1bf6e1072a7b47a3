package errors

import (
	"strings"
	"testing"
)

func TestWrapPreservesChain(t *testing.T) {
	sentinel := New("boom")

	err := Wrap(sentinel, "loading roster")
	if err == nil {
		t.Fatal("wrap returned nil")
	}
	if !Is(err, sentinel) {
		t.Fatalf("wrapped error lost its chain: %+v", err)
	}
	if !strings.Contains(err.Error(), "loading roster") {
		t.Fatalf("wrap message missing: %q", err.Error())
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "anything"); err != nil {
		t.Fatalf("wrapping nil should stay nil, got %+v", err)
	}
	if err := Wrapf(nil, "anything %d", 1); err != nil {
		t.Fatalf("wrapping nil should stay nil, got %+v", err)
	}
}
