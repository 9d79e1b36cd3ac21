package state

import "testing"

func TestHistoryBackForward(t *testing.T) {
	var h History
	h = h.Push("0xa").Push("0xb")

	h, anchor, ok := h.Back("0xb")
	if !ok || anchor != "0xa" {
		t.Fatalf("Back = %s %v, want 0xa", anchor, ok)
	}
	h, anchor, ok = h.Forward(anchor)
	if !ok || anchor != "0xb" {
		t.Fatalf("Forward = %s %v, want 0xb", anchor, ok)
	}

	h, anchor, _ = h.Back(anchor)
	h = h.Push("0xc")
	if len(h.Future()) != 0 {
		t.Fatalf("push after back kept the forward stack: %v", h.Future())
	}
	if _, _, ok := h.Forward("0xc"); ok {
		t.Fatal("forward after push")
	}
}

func TestHistoryBackThenForwardRestores(t *testing.T) {
	h := History{}.Push("0x1").Push("0x2").Push("0x3")
	current := "0x9"
	h2, prev, ok := h.Back("0x9")
	if !ok || prev != "0x3" {
		t.Fatalf("Back = %s %v", prev, ok)
	}
	_, next, ok := h2.Forward(prev)
	if !ok || string(next) != current {
		t.Fatalf("Forward = %s %v, want %s", next, ok, current)
	}
}

func TestHistoryDedupeAndEmpty(t *testing.T) {
	h := History{}.Push("0x1").Push("0x1").Push("0x2").Push("0x2")
	if got := h.Past(); len(got) != 2 {
		t.Fatalf("adjacent repeats not dropped: %v", got)
	}
	var empty History
	if _, _, ok := empty.Back("0x1"); ok {
		t.Fatal("Back on empty history")
	}
	if _, _, ok := empty.Forward("0x1"); ok {
		t.Fatal("Forward on empty history")
	}
	only := History{}.Push("0x5")
	if h, _, ok := only.Back("0x5"); ok || len(h.Past()) != 1 {
		t.Fatal("Back with only the current anchor should be a no-op")
	}
}
