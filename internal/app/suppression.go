// internal/app/suppression.go
package app

import (
	"strings"

	"notification_reconciler/internal/domain/notification"
)

// suppressionRule mutes content matching any keyword while its toggle is off.
type suppressionRule struct {
	name     string
	keywords []string
	allowed  func(cfg notification.SuppressionConfig) bool
}

var suppressionRules = []suppressionRule{
	{
		name:     "budget",
		keywords: []string{"budget", "cost", "limit", "bill", "exceeded"},
		allowed:  func(cfg notification.SuppressionConfig) bool { return cfg.BudgetAlerts },
	},
	{
		name:     "device",
		keywords: []string{"offline", "online", "connected", "hub", "device"},
		allowed:  func(cfg notification.SuppressionConfig) bool { return cfg.DeviceStatus },
	},
	{
		name:     "tips",
		keywords: []string{"tip", "news", "update", "smart"},
		allowed:  func(cfg notification.SuppressionConfig) bool { return cfg.TipsNews },
	},
}

// ShouldSuppress reports whether a classified candidate must be delivered silently.
// Any single failing rule suppresses; content without keywords is never suppressed by a rule.
func ShouldSuppress(c notification.Classified, cfg notification.SuppressionConfig) bool {
	return suppressionReason(c, cfg) != ""
}

// suppressionReason returns the name of the first rule that suppresses c, or "".
func suppressionReason(c notification.Classified, cfg notification.SuppressionConfig) string {
	if !cfg.PushEnabled {
		return "push-disabled"
	}
	haystack := strings.ToLower(c.RefinedTitle + " " + c.RefinedBody)
	for _, r := range suppressionRules {
		if !r.allowed(cfg) && containsAny(haystack, r.keywords) {
			return r.name
		}
	}
	return ""
}
