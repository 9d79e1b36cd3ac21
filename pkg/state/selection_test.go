package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cpuview/cpuview/pkg/address"
)

func TestToggleTwice(t *testing.T) {
	sel := Selection{}.Select("0x10").Toggle("0x20")
	for _, x := range []address.Address{"0x20", "0x30"} {
		before := sel.Contains(x)
		once := sel.Toggle(x)
		if once.Contains(x) == before || once.LastTouched() != x {
			t.Fatalf("first toggle of %s: contains=%v last=%s", x, once.Contains(x), once.LastTouched())
		}
		twice := once.Toggle(x)
		if twice.Contains(x) != before || twice.LastTouched() != x {
			t.Fatalf("second toggle of %s: contains=%v last=%s", x, twice.Contains(x), twice.LastTouched())
		}
		if !twice.Contains("0x10") {
			t.Fatalf("toggle of %s touched another member", x)
		}
	}
	if !sel.Contains("0x20") || sel.Len() != 2 {
		t.Fatal("receiver modified")
	}
}

func TestSelectAndClear(t *testing.T) {
	sel := Selection{}.SelectRange([]address.Address{"0x1", "0x2", "0x3"})
	if first, _ := sel.First(); first != "0x1" || sel.LastTouched() != "0x3" {
		t.Fatalf("range: first=%s last=%s", first, sel.LastTouched())
	}
	sel = sel.Select("0x9")
	if diff := cmp.Diff([]address.Address{"0x9"}, sel.Addresses()); diff != "" {
		t.Fatalf("select (-want +got):\n%s", diff)
	}
	sel = sel.Clear()
	if sel.Len() != 0 || sel.LastTouched() != "" {
		t.Fatalf("clear left %v / %q", sel.Addresses(), sel.LastTouched())
	}
	if _, ok := sel.First(); ok {
		t.Fatal("First on empty selection")
	}
}

func TestRangeBetween(t *testing.T) {
	w := window(0x100, 6, 2)
	got := RangeBetween(w, "0x108", "0x102")
	want := []address.Address{"0x102", "0x104", "0x106", "0x108"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if RangeBetween(w, "0x100", "0x999") != nil {
		t.Fatal("range with an address outside the window")
	}
}

func TestMoveSelection(t *testing.T) {
	w := window(0x100, 3, 1)
	sel := Selection{}.Move(w, 1)
	if sel.LastTouched() != "0x100" {
		t.Fatalf("move without selection should start at the top, got %s", sel.LastTouched())
	}
	sel = sel.Move(w, 1).Move(w, 5)
	if sel.LastTouched() != "0x102" || sel.Len() != 1 {
		t.Fatalf("move not clamped: %v", sel.Addresses())
	}
	sel = sel.Move(w, -10)
	if sel.LastTouched() != "0x100" {
		t.Fatalf("move not clamped at top: %v", sel.Addresses())
	}
}

func TestExtendKeepsPivot(t *testing.T) {
	w := window(0x100, 5, 1)
	sel := Selection{}.Select("0x102").Extend(w, "0x104")
	if diff := cmp.Diff([]address.Address{"0x102", "0x103", "0x104"}, sel.Addresses()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	sel = sel.Extend(w, "0x100")
	if diff := cmp.Diff([]address.Address{"0x100", "0x101", "0x102"}, sel.Addresses()); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if sel.LastTouched() != "0x102" {
		t.Fatalf("pivot moved to %s", sel.LastTouched())
	}
	if got := (Selection{}).Extend(w, "0x101").Addresses(); len(got) != 1 || got[0] != "0x101" {
		t.Fatalf("extend without pivot: %v", got)
	}
}

func TestMembershipFollowsAddresses(t *testing.T) {
	w := window(0x100, 6, 1)
	base := Selection{}.SelectRange([]address.Address{"0x101", "0x102", "0x101"})
	added := base.Toggle("0x105")
	removed := added.Toggle("0x101")
	extended := removed.Extend(w, "0x103")

	for _, tc := range []struct {
		name string
		sel  Selection
		want []address.Address
	}{
		{"range", base, []address.Address{"0x101", "0x102"}},
		{"added", added, []address.Address{"0x101", "0x102", "0x105"}},
		{"removed", removed, []address.Address{"0x102", "0x105"}},
		{"extended", extended, []address.Address{"0x101", "0x102", "0x103"}},
	} {
		if diff := cmp.Diff(tc.want, tc.sel.Addresses()); diff != "" {
			t.Errorf("%s (-want +got):\n%s", tc.name, diff)
		}
		for _, rec := range w {
			in := false
			for _, a := range tc.want {
				in = in || a == rec.Address
			}
			if tc.sel.Contains(rec.Address) != in {
				t.Errorf("%s: Contains(%s) = %v", tc.name, rec.Address, !in)
			}
		}
	}
}
