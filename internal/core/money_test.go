package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"12.34", "12.34", false},
		{"12,34", "12.34", false},
		{" 100 ", "100", false},
		{"0.01", "0.01", false},
		{"12.345", "12.345", false},
		{"1,234.56", "1234.56", false},
		{"1.234,56", "1234.56", false},
		{"1,234,567", "1234567", false},
		{"", "", true},
		{"0", "", true},
		{"-5", "", true},
		{"abc", "", true},
		{"1.2.3", "", true},
		{"1,2.3,4", "", true},
	}
	for _, c := range cases {
		got, err := ParseAmount(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q) expected error, got %s", c.in, got)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("ParseAmount(%q) error not tagged invalid argument: %v", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got.String() != c.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestParseOptionalAmount(t *testing.T) {
	if got, err := ParseOptionalAmount(""); err != nil || got != nil {
		t.Errorf("empty input should yield nil, nil; got %v, %v", got, err)
	}
	if got, err := ParseOptionalAmount("0"); err != nil || got == nil || !got.IsZero() {
		t.Errorf("zero is a valid sub-amount; got %v, %v", got, err)
	}
	if _, err := ParseOptionalAmount("-1"); err == nil {
		t.Error("negative sub-amount should be rejected")
	}
}
