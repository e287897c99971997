package payment

import (
	"regexp"
	"strings"
)

// Identity is the sender information extracted from a payment message.
type Identity struct {
	Name string
	Bank string
}

// Label-pattern matchers for payment details. Labels only match at line
// starts, so "Name:" inside a "Bank Name:" line cannot be taken for the
// customer name. The character classes stop at line breaks so each labelled
// line yields one value.
var (
	namePattern = regexp.MustCompile(`(?im)^\s*(?:full name|name)[:\s]+([A-Za-z][A-Za-z .'-]*)`)
	bankPattern = regexp.MustCompile(`(?im)^\s*(?:bank name|bank|sent from|from)[:\s]+([A-Za-z0-9][A-Za-z0-9 .'-]*)`)
)

// ExtractIdentity pulls the customer name and bank from a free-text message
// like "Name: John Doe\nBank: JazzCash". Absent labels leave fields empty.
func ExtractIdentity(text string) Identity {
	var id Identity
	if m := namePattern.FindStringSubmatch(text); m != nil {
		id.Name = strings.TrimSpace(m[1])
	}
	if m := bankPattern.FindStringSubmatch(text); m != nil {
		id.Bank = strings.TrimSpace(m[1])
	}
	return id
}

// Complete reports whether both fields were provided.
func (id Identity) Complete() bool {
	return id.Name != "" && id.Bank != ""
}

// MissingFields names what is still required, for re-prompting the guest.
func (id Identity) MissingFields() []string {
	var missing []string
	if id.Name == "" {
		missing = append(missing, "full name")
	}
	if id.Bank == "" {
		missing = append(missing, "bank name")
	}
	return missing
}
