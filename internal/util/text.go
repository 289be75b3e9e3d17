package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	reAllSpace = regexp.MustCompile(`\s+`)
)

// NormalizeSpaces collapses every whitespace run, newlines included, to one space.
func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reAllSpace.ReplaceAllString(input, " "))
}

// CollapseInlineSpaces collapses horizontal whitespace but keeps line breaks.
func CollapseInlineSpaces(input string) string {
	return reSpaces.ReplaceAllString(input, " ")
}

// NormalizeKey lower-cases and trims a value for case-insensitive lookups.
func NormalizeKey(input string) string {
	return strings.ToLower(NormalizeSpaces(input))
}

// TitleCase upper-cases the first letter of each word and lower-cases the rest.
func TitleCase(input string) string {
	return cases.Title(language.English).String(strings.ToLower(NormalizeSpaces(input)))
}

// SanitizeText strips control characters other than tab and newline.
func SanitizeText(input string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
}

// Truncate cuts input to at most max runes.
func Truncate(input string, max int) string {
	r := []rune(input)
	if len(r) <= max {
		return input
	}
	return string(r[:max])
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func StringPtr(v string) *string {
	return &v
}

func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
