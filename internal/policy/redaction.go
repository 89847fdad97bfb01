package policy

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Candidates only; isPhone and isCard decide.
	phonePattern = regexp.MustCompile(`\+?\(?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b[0-9](?:[ -]?[0-9]){12,18}\b`)
	isoDate      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	digitGroups  = regexp.MustCompile(`[0-9]+`)
)

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	// Card before phone, otherwise card numbers are classified as phones.
	next = replaceIf(cardPattern, out, isCard, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = replaceIf(phonePattern, out, isPhone, "[REDACTED_PHONE]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactExchange masks PII in both halves of a chat exchange before it is
// written to the chat log.
func RedactExchange(message, response string) (string, string, bool) {
	m, mChanged := RedactPII(message)
	r, rChanged := RedactPII(response)
	return m, r, mChanged || rChanged
}

func replaceIf(re *regexp.Regexp, s string, keep func(string) bool, mask string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		if keep(m) {
			return mask
		}
		return m
	})
}

func isCard(candidate string) bool {
	if onlyYears(candidate) {
		return false
	}
	return luhn(digitsOf(candidate))
}

func isPhone(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	n := len(digitsOf(candidate))
	if n < 10 || n > 15 {
		return false
	}
	if isoDate.MatchString(strings.TrimLeft(candidate, "+(")) {
		return false
	}
	return !onlyYears(candidate)
}

// onlyYears reports whether every digit group is a plausible season year,
// as in "2014 2015 2017" or "2021-2024".
func onlyYears(s string) bool {
	groups := digitGroups.FindAllString(s, -1)
	if len(groups) == 0 {
		return false
	}
	for _, g := range groups {
		if len(g) != 4 {
			return false
		}
		year, _ := strconv.Atoi(g)
		if year < 1900 || year > 2099 {
			return false
		}
	}
	return true
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func luhn(digits string) bool {
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
