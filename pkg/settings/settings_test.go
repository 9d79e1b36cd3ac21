package settings

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSetDoesNotModifyReceiver(t *testing.T) {
	s := Default()
	ns, err := s.Set(KeyListingCase, "lower")
	if err != nil {
		t.Fatal(err)
	}
	if s.ListingCase != CaseUpper {
		t.Fatalf("receiver modified: %v", s.ListingCase)
	}
	if ns.ListingCase != CaseLower {
		t.Fatalf("new value not applied: %v", ns.ListingCase)
	}
}

func TestSetInvalid(t *testing.T) {
	s := Default()
	for _, tc := range []struct{ key, value string }{
		{"nope", "x"},
		{KeyNumberFormat, "octal"},
		{KeySwapArguments, "yes"},
		{KeyNegativeWidth, "12"},
	} {
		ns, err := s.Set(tc.key, tc.value)
		if err == nil {
			t.Errorf("Set(%q, %q) succeeded", tc.key, tc.value)
			continue
		}
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("Set(%q, %q): %v does not wrap ErrInvalid", tc.key, tc.value, err)
		}
		if diff := cmp.Diff(s, ns); diff != "" {
			t.Errorf("Set(%q, %q) changed settings on error (-want +got):\n%s", tc.key, tc.value, diff)
		}
	}
}

func TestMergeBackendStrings(t *testing.T) {
	s, errs := Default().Merge(map[string]string{
		KeySwapArguments:   "false",
		KeyShowGdbComments: "false",
		KeyNumberFormat:    "dec",
		KeyNegativeWidth:   "32",
		"windowLayout":     "{}",
		KeyListingCase:     "mixed",
	})
	if len(errs) != 2 {
		t.Fatalf("expected two skipped entries, got %v", errs)
	}
	want := Default()
	want.SwapArguments = false
	want.ShowGdbComments = false
	want.NumberFormat = NumberDecimal
	want.NegativeWidth = 32
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMapRoundTrip(t *testing.T) {
	s := Default()
	s.RegisterNaming = NamingPercent
	s.CopyHexFormat = HexPython
	back, errs := Default().Merge(s.Map())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if diff := cmp.Diff(s, back); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitize(t *testing.T) {
	s := Settings{ListingCase: "shouting", NegativeWidth: 7}
	got := s.Sanitize()
	def := Default()
	if got.ListingCase != def.ListingCase || got.NegativeWidth != def.NegativeWidth || got.NumberFormat != def.NumberFormat {
		t.Fatalf("Sanitize did not restore defaults: %+v", got)
	}
	if got.SwapArguments {
		t.Fatalf("Sanitize should keep valid boolean values as they are")
	}
}
