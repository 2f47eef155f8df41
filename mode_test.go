package framing

import (
	"testing"
)

func TestMode_String(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeAsync, "async"},
		{ModeSync, "sync"},
		{ModeAsyncFramed, "async-framed"},
		{Mode(7), "Mode(7)"},
	}

	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", int(tt.mode), got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeAsync, ModeSync, ModeAsyncFramed} {
		got, err := ParseMode(m.String())
		if err != nil {
			t.Fatalf("ParseMode(%q) failed: %v", m.String(), err)
		}
		if got != m {
			t.Errorf("ParseMode(%q) = %v, want %v", m.String(), got, m)
		}
	}

	if got, err := ParseMode("framed"); err != nil || got != ModeAsyncFramed {
		t.Errorf("ParseMode(\"framed\") = (%v, %v), want async-framed", got, err)
	}

	if _, err := ParseMode("udp"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestMode_DefaultIsAsync(t *testing.T) {
	var m Mode
	if m != ModeAsync {
		t.Errorf("zero Mode = %v, want async", m)
	}
	if Mode(-1).valid() || Mode(3).valid() {
		t.Error("out of range modes reported as valid")
	}
}

func TestLengthWord(t *testing.T) {
	word, err := LengthWord(1, 2)
	if err != nil {
		t.Fatalf("LengthWord failed: %v", err)
	}
	if word != 0x01000002 {
		t.Errorf("LengthWord(1, 2) = %#08x, want 0x01000002", word)
	}

	h, b := SplitLengthWord(word)
	if h != 1 || b != 2 {
		t.Errorf("SplitLengthWord = (%d, %d), want (1, 2)", h, b)
	}

	word, err = LengthWord(MaxHeaderLen, MaxBodyLen)
	if err != nil {
		t.Fatalf("LengthWord at limits failed: %v", err)
	}
	if word != 0xFFFFFFFF {
		t.Errorf("LengthWord at limits = %#08x, want 0xffffffff", word)
	}
}

func TestLengthWord_Overflow(t *testing.T) {
	if _, err := LengthWord(MaxHeaderLen+1, 0); err != ErrHeaderTooLarge {
		t.Errorf("expected ErrHeaderTooLarge, got %v", err)
	}
	if _, err := LengthWord(0, MaxBodyLen+1); err != ErrBodyTooLarge {
		t.Errorf("expected ErrBodyTooLarge, got %v", err)
	}
	if _, err := LengthWord(-1, 0); err != ErrHeaderTooLarge {
		t.Errorf("expected ErrHeaderTooLarge for negative length, got %v", err)
	}
}
