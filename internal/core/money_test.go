package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"1000000000000", MaxAmountCents, true},
		{"999999999999.99", MaxAmountCents - 1, true},
		{"1000000000000.01", 0, false},
		{"60000000000000000", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyUnmarshalJSON(t *testing.T) {
	cases := []struct {
		in    string
		cents int64
		ok    bool
	}{
		{`1000`, 100000, true},
		{`12.5`, 1250, true},
		{`"250.75"`, 25075, true},
		{`1e3`, 100000, true},
		{`0`, 0, true},
		{`-5`, 0, false},
		{`"abc"`, 0, false},
		{`1000000000000`, MaxAmountCents, true},
		{`1000000000000.004`, MaxAmountCents, true},
		{`1000000000000.01`, 0, false},
		{`60000000000000000`, 0, false},
		{`1e300`, 0, false},
		{`"60000000000000000"`, 0, false},
	}
	for _, tc := range cases {
		var m Money
		err := json.Unmarshal([]byte(tc.in), &m)
		if tc.ok {
			if err != nil || m.Cents != tc.cents {
				t.Fatalf("%s expected %d cents, got %d (err=%v)", tc.in, tc.cents, m.Cents, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%s expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestMoneyMarshalJSON(t *testing.T) {
	for cents, want := range map[int64]string{
		0:                  "0",
		100000:             "1000",
		1250:               "12.5",
		1:                  "0.01",
		MaxAmountCents:     "1000000000000",
		MaxAmountCents - 1: "999999999999.99",
	} {
		got, err := json.Marshal(Money{Cents: cents})
		if err != nil || string(got) != want {
			t.Fatalf("Money{%d} marshalled to %s (err=%v), want %s", cents, got, err, want)
		}
	}
}
