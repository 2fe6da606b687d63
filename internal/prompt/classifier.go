package prompt

import (
	"regexp"
	"strings"
)

// Classifier decides how a prompt's answer should be entered.
type Classifier struct {
	patterns []Pattern
}

// ClassifierOption configures the classifier.
type ClassifierOption func(*Classifier)

// WithCustomPatterns adds patterns that are tried before the built-in ones.
func WithCustomPatterns(patterns []Pattern) ClassifierOption {
	return func(c *Classifier) {
		c.patterns = append(append([]Pattern{}, patterns...), c.patterns...)
	}
}

// NewClassifier creates a new prompt classifier.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		patterns: DefaultPatterns(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

var defaultClassifier = NewClassifier()

// Classify classifies message with the built-in patterns.
func Classify(message string) Kind {
	return defaultClassifier.Classify(message)
}

// Classify returns the kind of prompt message is.
func (c *Classifier) Classify(message string) Kind {
	for _, pattern := range c.patterns {
		if pattern.Regex != nil && pattern.Regex.MatchString(message) {
			return pattern.Kind
		}
	}
	return classifyByHeuristics(message)
}

var yesNoPattern = regexp.MustCompile(`(?i)\(?\[?\byes/no\b`)

func classifyByHeuristics(message string) Kind {
	if yesNoPattern.MatchString(message) {
		return KindConfirmation
	}

	lower := strings.ToLower(message)
	for _, indicator := range []string{"verification code", "one-time", "otp", "token code", "authenticator"} {
		if strings.Contains(lower, indicator) {
			return KindCode
		}
	}

	// Anything the transport asks for that we cannot place is treated as a
	// secret so it is never echoed.
	return KindSecret
}
