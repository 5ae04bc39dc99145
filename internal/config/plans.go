package config

// Plan is a prepaid monthly top-up tier.
type Plan struct {
	Key     string
	Name    string
	Amount  int64
	Letters int
}

const (
	DefaultPlanAmount    int64 = 7600
	MaxBalanceMultiplier int64 = 3
)

var Plans = []Plan{
	{Key: "start", Name: "スタート", Amount: 3800, Letters: 10},
	{Key: "standard", Name: "スタンダード", Amount: 7600, Letters: 20},
	{Key: "pro", Name: "プロ", Amount: 15200, Letters: 40},
	{Key: "full", Name: "フル", Amount: 38000, Letters: 100},
}

// PlanByAmount returns the plan whose monthly amount matches.
func PlanByAmount(amount int64) (Plan, bool) {
	for _, p := range Plans {
		if p.Amount == amount {
			return p, true
		}
	}
	return Plan{}, false
}

// MaxBalance is the soft ceiling on a prepaid balance for the given plan amount.
func MaxBalance(planAmount int64) int64 {
	if planAmount <= 0 {
		planAmount = DefaultPlanAmount
	}
	return planAmount * MaxBalanceMultiplier
}
