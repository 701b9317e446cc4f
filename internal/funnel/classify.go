package funnel

import (
	"regexp"
	"strings"
)

// InputKind is the shape of an inbound message, classified against the fixed
// set of literal and format rules the funnel understands. Classification is
// the first stage of dispatch; the second combines the shape with the
// session's current state.
type InputKind int

const (
	// InputFreeText is any text matching none of the fixed patterns.
	InputFreeText InputKind = iota
	InputAge
	InputCountry
	InputConsent
	InputPhone
)

var (
	agePattern     = regexp.MustCompile(`^(18-25|26-35|36-45|46-55)$`)
	countryPattern = regexp.MustCompile(`^(Россия|Узбекистан|Казахстан|Другое)$`)
	consentPattern = regexp.MustCompile(`(?i)^(да|нет)$`)
	phonePattern   = regexp.MustCompile(`^\+7\d{10}$`)
)

// Classify maps a message to its input shape.
func Classify(text string) InputKind {
	switch {
	case agePattern.MatchString(text):
		return InputAge
	case countryPattern.MatchString(text):
		return InputCountry
	case consentPattern.MatchString(text):
		return InputConsent
	case phonePattern.MatchString(text):
		return InputPhone
	default:
		return InputFreeText
	}
}

// IsAffirmative reports whether a consent input means yes.
func IsAffirmative(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "да")
}

// IsValidPhone reports whether text is a full phone number: the +7 prefix
// followed by exactly ten digits, no separators.
func IsValidPhone(text string) bool {
	return phonePattern.MatchString(text)
}
