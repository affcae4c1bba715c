package pretty

import "testing"

func TestSize(t *testing.T) {
	cases := []struct {
		Size Size
		Want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5 MiB"},
		{-2048, "-2 KiB"},
		{3 << 30, "3 GiB"},
	}

	for i, tc := range cases {
		if got := tc.Size.String(); got != tc.Want {
			t.Errorf("case #%d: got: %q; want %q", i, got, tc.Want)
		}
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		In   string
		Want int64
	}{
		{"42", 42},
		{"1k", 1024},
		{"1.5 MiB", 3 << 19},
		{"2GB", 2 << 30},
		{" 10 b ", 10},
	}

	for i, tc := range cases {
		got, err := ParseSize(tc.In)
		if err != nil {
			t.Errorf("case #%d: %s", i, err)
			continue
		}
		if got != tc.Want {
			t.Errorf("case #%d: got: %d; want %d", i, got, tc.Want)
		}
	}

	for _, in := range []string{"", "MiB", "5 parsecs"} {
		if _, err := ParseSize(in); err == nil {
			t.Errorf("%q: expected error", in)
		}
	}
}

func TestAbbrev(t *testing.T) {
	if got := Abbrev("short").String(); got != "short" {
		t.Errorf("got: %q; want %q", got, "short")
	}
	if got, want := Abbrev("0123456789abcdef", 8).String(), "01234567... (16 B)"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
}
