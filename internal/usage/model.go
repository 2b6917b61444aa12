package usage

import "time"

// Plans and their monthly analysis quotas.
const (
	PlanFree         = "free"
	PlanStarter      = "starter"
	PlanProfessional = "professional"
)

// Usage represents a user's plan consumption for the current month.
type Usage struct {
	Plan     string    `json:"plan"`
	Limit    int       `json:"limit"`
	Used     int       `json:"used"`
	ResetsAt time.Time `json:"resetsAt"`
}

// PlanLimit returns the monthly analysis quota for a plan. Unknown plans
// fall back to the free tier.
func PlanLimit(plan string) int {
	switch plan {
	case PlanProfessional:
		return 1000
	case PlanStarter:
		return 100
	default:
		return 10
	}
}

func defaultUsage() Usage {
	return Usage{
		Plan:     PlanFree,
		Limit:    PlanLimit(PlanFree),
		Used:     0,
		ResetsAt: nextMonthStart(time.Now().UTC()),
	}
}

// nextMonthStart returns midnight UTC on the first day of the next month.
func nextMonthStart(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
