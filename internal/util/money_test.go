package util

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "960", want: "960"},
		{name: "currency and decimals", input: "R1750.00", want: "1750"},
		{name: "thousand with space", input: "R 1 750.00", want: "1750"},
		{name: "thousand with comma", input: "2,500.00", want: "2500"},
		{name: "decimal comma", input: "420,50", want: "420.5"},
		{name: "thousand dot", input: "1.250", want: "1250"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseAmount(tc.input)
			if !ok {
				t.Fatalf("no amount parsed from %q", tc.input)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("got %s want %s", got, tc.want)
			}
		})
	}
}

func TestParseAmountNoDigits(t *testing.T) {
	if _, ok := ParseAmount("free"); ok {
		t.Fatal("expected no amount")
	}
}

func TestFormatMoney(t *testing.T) {
	if got := FormatMoney(decimal.NewFromInt(960)); got != "960.00" {
		t.Fatalf("got %s", got)
	}
	if got := FormatMoneyGrouped(decimal.RequireFromString("12500.5")); got != "12,500.50" {
		t.Fatalf("got %s", got)
	}
	if got := FormatMoneyGrouped(decimal.NewFromInt(960)); got != "960.00" {
		t.Fatalf("got %s", got)
	}
}

func TestTitleCase(t *testing.T) {
	if got := TitleCase("  jANE   van der merwe "); got != "Jane Van Der Merwe" {
		t.Fatalf("got %q", got)
	}
}
