package ticketutil

import (
	"net/mail"
	"strings"
)

// MaxTrackingIDLength is the length of the trackid column.
const MaxTrackingIDLength = 12

// CleanTrackingID upper-cases id and drops every character outside A-Z, 0-9
// and '-'. The result is cut to MaxTrackingIDLength.
func CleanTrackingID(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	var b strings.Builder
	for _, r := range id {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
			if b.Len() == MaxTrackingIDLength {
				break
			}
		}
	}
	return b.String()
}

// NormalizeEmail lower-cases and trims an address. Invalid addresses yield "".
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return ""
	}
	return strings.ToLower(addr.Address)
}

// EmailMatches reports whether the customer email is one of the addresses
// stored on the ticket. HESK stores several addresses comma separated.
func EmailMatches(customer, stored string) bool {
	customer = NormalizeEmail(customer)
	if customer == "" {
		return false
	}
	for _, e := range strings.Split(stored, ",") {
		if NormalizeEmail(e) == customer {
			return true
		}
	}
	return false
}
