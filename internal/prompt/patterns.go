package prompt

import "regexp"

// Kind is the kind of answer a prompt expects.
type Kind string

const (
	KindSecret       Kind = "secret"
	KindConfirmation Kind = "confirmation"
	KindCode         Kind = "code"
)

// Masked reports whether the operator's input should be hidden while typed.
// Only confirmations are echoed.
func (k Kind) Masked() bool {
	return k != KindConfirmation
}

// Pattern maps a prompt text pattern to a kind.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
	Kind  Kind
}

// DefaultPatterns returns the built-in prompt patterns.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// SSH host key confirmation
		{
			Name:  "ssh_host_key",
			Regex: regexp.MustCompile(`(?i)are you sure you want to continue connecting \(yes/no(/\[fingerprint\])?\)\?`),
			Kind:  KindConfirmation,
		},
		{
			Name:  "key_passphrase",
			Regex: regexp.MustCompile(`(?i)enter passphrase for (key )?['"]?[^'"]+['"]?:\s*$`),
			Kind:  KindSecret,
		},
		{
			Name:  "verification_code",
			Regex: regexp.MustCompile(`(?i)(verification|one[- ]time|2fa|two[- ]factor|authenticator)\s*(code|password|token)?\s*:\s*$`),
			Kind:  KindCode,
		},
		{
			Name:  "ssh_password",
			Regex: regexp.MustCompile(`(?i)(\S+@\S+'s )?password:\s*$`),
			Kind:  KindSecret,
		},
		{
			Name:  "duo_passcode",
			Regex: regexp.MustCompile(`(?i)passcode or option`),
			Kind:  KindCode,
		},
	}
}

// MustPattern compiles expr into a Pattern, panicking on invalid input.
func MustPattern(name, expr string, kind Kind) Pattern {
	return Pattern{Name: name, Regex: regexp.MustCompile(expr), Kind: kind}
}
