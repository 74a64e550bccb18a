package flows

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const maxEmailLength = 254

// normalizeEmail trims and lowercases raw and checks it is a bare address.
func normalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > maxEmailLength {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", false
	}
	return email, true
}

func checkPassword(password string, minLen, maxLen int, validation error) error {
	n := utf8.RuneCountInString(password)
	if minLen > 0 && n < minLen {
		return fmt.Errorf("%w: password must be at least %d characters", validation, minLen)
	}
	if maxLen > 0 && n > maxLen {
		return fmt.Errorf("%w: password must be at most %d characters", validation, maxLen)
	}
	return nil
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
