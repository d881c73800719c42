package core

// CategoryAmount represents an expense amount aggregated by category.
type CategoryAmount struct {
	CategoryID *string // nil groups uncategorized entries
	Name       string
	Amount     Money
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year         int
	Month        int // 1-12
	TotalExpense Money
	TotalIncome  Money
	ByCategory   []CategoryAmount
}

// Net returns income minus expenses for the month.
func (o MonthOverview) Net() Money {
	return o.TotalIncome.Sub(o.TotalExpense)
}
