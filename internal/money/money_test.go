package money

import "testing"

func TestParseMinor(t *testing.T) {
	cases := []struct {
		input string
		want  int64
		err   error
	}{
		{"100.00", 10000, nil},
		{"100", 10000, nil},
		{"0.5", 50, nil},
		{"0.55", 55, nil},
		{"-12.34", -1234, nil},
		{" 20.00 ", 2000, nil},
		{"", 0, ErrInvalidAmount},
		{"abc", 0, ErrInvalidAmount},
		{"1.234", 0, ErrTooManyDecimals},
		{"1.2x", 0, ErrInvalidAmount},
	}
	for _, tc := range cases {
		got, err := ParseMinor(tc.input)
		if err != tc.err {
			t.Fatalf("ParseMinor(%q): expected error %v, got %v", tc.input, tc.err, err)
		}
		if got != tc.want {
			t.Fatalf("ParseMinor(%q): expected %d, got %d", tc.input, tc.want, got)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	cases := []struct {
		input int64
		want  string
	}{
		{10000, "100.00"},
		{55, "0.55"},
		{5, "0.05"},
		{-1234, "-12.34"},
		{0, "0.00"},
	}
	for _, tc := range cases {
		if got := FormatMinor(tc.input); got != tc.want {
			t.Fatalf("FormatMinor(%d): expected %q, got %q", tc.input, tc.want, got)
		}
	}
}

func TestValueToInt64(t *testing.T) {
	if got := ValueToInt64(int64(42)); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := ValueToInt64([]byte("1500")); got != 1500 {
		t.Fatalf("expected 1500, got %d", got)
	}
	if got := ValueToInt64(nil); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
