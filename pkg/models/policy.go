package models

// WorkTimePluginID is the plugin id a PolicyWrapper must carry to be
// accepted as a work-time policy.
const WorkTimePluginID = "worktime"

// WildcardPackage in an allow-list admits every package.
const WildcardPackage = "*"

// PolicyDocument is the effective work-time policy for a device.
// It is treated as immutable once parsed and is replaced wholesale.
type PolicyDocument struct {
	EnforcementEnabled bool `json:"enforcementEnabled"`

	// StartTime and EndTime are "HH:mm" in 24h format. If either is empty
	// the policy never reports work time.
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`

	// DaysOfWeek is a bitmask: bit 0 is Monday, bit 6 is Sunday.
	DaysOfWeek int64 `json:"daysOfWeek"`

	// A nil list is absent and denies everything in its window; an empty
	// list is present but admits nothing either.
	AllowedDuring  []string `json:"allowedDuring"`
	AllowedOutside []string `json:"allowedOutside"`

	// Exception window in epoch milliseconds. Carried for compatibility
	// with the server schema; evaluation does not consult it yet.
	ExceptionStartDateTime *int64 `json:"exceptionStartDateTime,omitempty"`
	ExceptionEndDateTime   *int64 `json:"exceptionEndDateTime,omitempty"`
}

// HasWindow reports whether both ends of the work-time window are set.
func (p *PolicyDocument) HasWindow() bool {
	return p != nil && p.StartTime != "" && p.EndTime != ""
}

// PolicyWrapper is the envelope a policy travels in inside the device
// configuration.
type PolicyWrapper struct {
	PluginID  string          `json:"pluginId"`
	Timestamp int64           `json:"timestamp"`
	Policy    *PolicyDocument `json:"policy"`
}

// IsWorkTime reports whether the wrapper carries a usable work-time policy.
func (w *PolicyWrapper) IsWorkTime() bool {
	return w != nil && w.PluginID == WorkTimePluginID && w.Policy != nil
}
