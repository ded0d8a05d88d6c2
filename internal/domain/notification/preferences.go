// internal/domain/notification/preferences.go
package notification

// SuppressionConfig holds the persisted per-category notification preferences.
// The zero value is NOT the default; use DefaultSuppressionConfig.
type SuppressionConfig struct {
	PushEnabled  bool `json:"pushEnabled"`
	BudgetAlerts bool `json:"budgetAlerts"`
	DeviceStatus bool `json:"deviceStatus"`
	TipsNews     bool `json:"tipsNews"`
}

// DefaultSuppressionConfig is used when nothing has been stored yet. Everything is allowed.
func DefaultSuppressionConfig() SuppressionConfig {
	return SuppressionConfig{
		PushEnabled:  true,
		BudgetAlerts: true,
		DeviceStatus: true,
		TipsNews:     true,
	}
}

// PreferenceKey names a single toggle in SuppressionConfig.
type PreferenceKey string

const (
	PreferencePush   PreferenceKey = "push"
	PreferenceBudget PreferenceKey = "budget"
	PreferenceDevice PreferenceKey = "device"
	PreferenceTips   PreferenceKey = "tips"
)

// PreferenceKeys lists toggles in display order.
var PreferenceKeys = []PreferenceKey{PreferencePush, PreferenceBudget, PreferenceDevice, PreferenceTips}

// Value returns the current state of the named toggle.
func (c SuppressionConfig) Value(k PreferenceKey) (bool, bool) {
	switch k {
	case PreferencePush:
		return c.PushEnabled, true
	case PreferenceBudget:
		return c.BudgetAlerts, true
	case PreferenceDevice:
		return c.DeviceStatus, true
	case PreferenceTips:
		return c.TipsNews, true
	default:
		return false, false
	}
}

// With returns a copy of c with the named toggle set to v. Unknown keys return c unchanged and false.
func (c SuppressionConfig) With(k PreferenceKey, v bool) (SuppressionConfig, bool) {
	switch k {
	case PreferencePush:
		c.PushEnabled = v
	case PreferenceBudget:
		c.BudgetAlerts = v
	case PreferenceDevice:
		c.DeviceStatus = v
	case PreferenceTips:
		c.TipsNews = v
	default:
		return c, false
	}
	return c, true
}
