package order

import "regexp"

// phoneRe accepts an optional '+', a digit and at least seven more digits,
// spaces, hyphens or parentheses.
var phoneRe = regexp.MustCompile(`\A\+?\d[\d\s\-()]{7,}\z`)

// ValidPhone reports whether phone looks like a phone number.
// The rule is permissive on purpose: visually formatted numbers pass and
// nothing is normalized.
func ValidPhone(phone string) bool {
	return phoneRe.MatchString(phone)
}
