package util

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	reAmount        = regexp.MustCompile(`\d{1,3}(?:[\s,]\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?`)
	reThousandsDot  = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	reThousandsComm = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

// ParseAmount reads the first monetary amount in input, tolerating currency
// prefixes ("R 1 750.00"), thousand separators and decimal commas.
func ParseAmount(input string) (decimal.Decimal, bool) {
	line := strings.ReplaceAll(input, "\u00a0", " ")
	token := reAmount.FindString(line)
	if token == "" {
		return decimal.Zero, false
	}
	parsed, err := decimal.NewFromString(normalizeNumericToken(token))
	if err != nil {
		return decimal.Zero, false
	}
	return parsed, true
}

// FormatMoney renders an amount with two decimals.
func FormatMoney(v decimal.Decimal) string {
	return v.StringFixed(2)
}

// FormatMoneyGrouped renders an amount with two decimals and comma thousand separators.
func FormatMoneyGrouped(v decimal.Decimal) string {
	fixed := v.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if reThousandsDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if reThousandsComm.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
