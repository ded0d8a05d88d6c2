// internal/app/classifier.go
package app

import (
	"strings"

	"notification_reconciler/internal/domain/notification"
)

// Canonical rewrites applied by the classifier.
const (
	SecurityAlertTitle  = "Security Alert"
	SecurityAlertBody   = "A new login to your account was detected. If this wasn't you, change your password right away."
	InviteAcceptedTitle = "Invite Accepted"
	InviteDeclinedTitle = "Invite Declined"
)

var securityKeywords = []string{"other device", "new device", "someone login", "security"}

// classificationRule matches on trimmed, lowercased text and produces the refined output
// from the display text as received.
type classificationRule struct {
	name    string
	matches func(title, body string) bool
	apply   func(title, body string) (string, string, notification.Category)
}

func securityRewrite(_, _ string) (string, string, notification.Category) {
	return SecurityAlertTitle, SecurityAlertBody, notification.CategorySecurity
}

// classificationRules are evaluated top-down; the first match wins.
var classificationRules = []classificationRule{
	{
		name:    "login-successful",
		matches: func(title, _ string) bool { return strings.Contains(title, "login successful") },
		apply:   securityRewrite,
	},
	{
		name: "security-keyword",
		matches: func(title, body string) bool {
			return containsAny(title, securityKeywords) || containsAny(body, securityKeywords)
		},
		apply: securityRewrite,
	},
	{
		name:    "invite-accepted",
		matches: func(title, _ string) bool { return strings.Contains(title, "accepted") },
		apply: func(_, body string) (string, string, notification.Category) {
			return InviteAcceptedTitle, body, notification.CategoryInviteAccepted
		},
	},
	{
		name:    "invite-declined",
		matches: func(title, _ string) bool { return strings.Contains(title, "declined") },
		apply: func(_, body string) (string, string, notification.Category) {
			return InviteDeclinedTitle, body, notification.CategoryInviteDeclined
		},
	},
}

// Classify maps raw title/body into refined display text and a category.
// It is pure and deterministic.
func Classify(title, body string) (string, string, notification.Category) {
	t := normalize(title)
	b := normalize(body)
	for _, r := range classificationRules {
		if r.matches(t, b) {
			return r.apply(title, body)
		}
	}
	return title, body, notification.CategoryGeneric
}

// ClassifyCandidate wraps Classify for a whole candidate.
func ClassifyCandidate(c notification.Candidate) notification.Classified {
	title, body, category := Classify(c.Title, c.Body)
	return notification.Classified{
		Candidate:    c,
		RefinedTitle: title,
		RefinedBody:  body,
		Category:     category,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
