package ledger

import "strings"

// AccountRole marks accounts that financial statements treat specially.
type AccountRole string

const (
	RoleNone                  AccountRole = ""
	RoleRetainedEarnings      AccountRole = "RETAINED_EARNINGS"
	RolePriorPeriodAdjustment AccountRole = "PRIOR_PERIOD_ADJUSTMENT"
	RoleNetIncome             AccountRole = "NET_INCOME"
	RoleRevenue               AccountRole = "REVENUE"
	RoleCostOfGoodsSold       AccountRole = "COST_OF_GOODS_SOLD"
)

// Legacy name markers. Accounts imported without an explicit role are matched on these.
const (
	markerRetainedEarnings = "Retained Earnings"
	markerPriorPeriod      = "Prior Period"
	markerNetIncome        = "Net Income"
	markerRevenue          = "Revenue"
	markerCostOfGoodsSold  = "Cost of Goods Sold"
)

// ClassifyRole derives a role from an account name using case-sensitive substring
// matches. Order matters: "Prior Period" wins over "Retained Earnings" so that
// "Retained Earnings - Prior Period Adjustment" is an adjustment line.
func ClassifyRole(name string) AccountRole {
	switch {
	case strings.Contains(name, markerPriorPeriod):
		return RolePriorPeriodAdjustment
	case strings.Contains(name, markerRetainedEarnings):
		return RoleRetainedEarnings
	case strings.Contains(name, markerNetIncome):
		return RoleNetIncome
	case strings.Contains(name, markerCostOfGoodsSold):
		return RoleCostOfGoodsSold
	case strings.Contains(name, markerRevenue):
		return RoleRevenue
	default:
		return RoleNone
	}
}

// ParseRole normalises a stored role value.
func ParseRole(raw string) AccountRole {
	switch AccountRole(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleRetainedEarnings:
		return RoleRetainedEarnings
	case RolePriorPeriodAdjustment:
		return RolePriorPeriodAdjustment
	case RoleNetIncome:
		return RoleNetIncome
	case RoleRevenue:
		return RoleRevenue
	case RoleCostOfGoodsSold:
		return RoleCostOfGoodsSold
	default:
		return RoleNone
	}
}

// IsSubstituted reports whether the role's balance comes from the period summary.
func (r AccountRole) IsSubstituted() bool {
	switch r {
	case RoleRetainedEarnings, RolePriorPeriodAdjustment, RoleNetIncome:
		return true
	default:
		return false
	}
}
