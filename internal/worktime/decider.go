package worktime

import (
	"slices"
	"time"

	"github.com/org/mdmagent/pkg/models"
)

// Reason explains an access decision.
type Reason string

const (
	ReasonNoPolicy            Reason = "no_policy"
	ReasonEnforcementDisabled Reason = "enforcement_disabled"
	ReasonNoList              Reason = "no_list"
	ReasonWildcard            Reason = "wildcard"
	ReasonListed              Reason = "listed"
	ReasonNotListed           Reason = "not_listed"
)

// Decision is the outcome of an app launch check.
type Decision struct {
	Package  string `json:"package"`
	Allowed  bool   `json:"allowed"`
	WorkTime bool   `json:"work_time"`
	Reason   Reason `json:"reason"`
}

// Decide evaluates whether packageID may run at now. A nil or disabled
// policy allows everything.
func Decide(p *models.PolicyDocument, packageID string, now time.Time) Decision {
	d := Decision{Package: packageID}
	if p == nil {
		d.Allowed, d.Reason = true, ReasonNoPolicy
		return d
	}
	if !p.EnforcementEnabled {
		d.Allowed, d.Reason = true, ReasonEnforcementDisabled
		return d
	}

	d.WorkTime = IsWorkTime(p, now)
	list := p.AllowedOutside
	if d.WorkTime {
		list = p.AllowedDuring
	}

	switch {
	case list == nil:
		d.Reason = ReasonNoList
	case slices.Contains(list, models.WildcardPackage):
		d.Allowed, d.Reason = true, ReasonWildcard
	case slices.Contains(list, packageID):
		d.Allowed, d.Reason = true, ReasonListed
	default:
		d.Reason = ReasonNotListed
	}
	return d
}

// IsAllowed returns true if packageID may run at now under p.
func IsAllowed(p *models.PolicyDocument, packageID string, now time.Time) bool {
	return Decide(p, packageID, now).Allowed
}
