package models

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBudget is returned when a budget limit is negative or not a number.
var ErrInvalidBudget = errors.New("invalid budget configuration")

// BudgetLimits are the daily and monthly spend limits of a tenant, in USD.
type BudgetLimits struct {
	Daily   float64 `json:"daily" db:"daily_limit"`
	Monthly float64 `json:"monthly" db:"monthly_limit"`
}

// Validate rejects negative or non-finite limits.
func (l BudgetLimits) Validate() error {
	if l.Daily < 0 || math.IsNaN(l.Daily) || math.IsInf(l.Daily, 0) {
		return fmt.Errorf("%w: daily limit %v", ErrInvalidBudget, l.Daily)
	}
	if l.Monthly < 0 || math.IsNaN(l.Monthly) || math.IsInf(l.Monthly, 0) {
		return fmt.Errorf("%w: monthly limit %v", ErrInvalidBudget, l.Monthly)
	}
	return nil
}

// BudgetStatus compares a tenant's spend against its limits.
type BudgetStatus struct {
	TenantID         string  `json:"tenant_id"`
	DailyLimit       float64 `json:"daily_limit"`
	MonthlyLimit     float64 `json:"monthly_limit"`
	DailyUsage       float64 `json:"daily_usage"`
	MonthlyUsage     float64 `json:"monthly_usage"`
	DailyRemaining   float64 `json:"daily_remaining"`
	MonthlyRemaining float64 `json:"monthly_remaining"`
	DailyExceeded    bool    `json:"daily_exceeded"`
	MonthlyExceeded  bool    `json:"monthly_exceeded"`
}

// NewBudgetStatus derives remaining amounts and exceeded flags from usage.
// A limit is exceeded only when usage is strictly greater than it.
func NewBudgetStatus(tenantID string, limits BudgetLimits, dailyUsage, monthlyUsage float64) BudgetStatus {
	return BudgetStatus{
		TenantID:         tenantID,
		DailyLimit:       limits.Daily,
		MonthlyLimit:     limits.Monthly,
		DailyUsage:       dailyUsage,
		MonthlyUsage:     monthlyUsage,
		DailyRemaining:   math.Max(0, limits.Daily-dailyUsage),
		MonthlyRemaining: math.Max(0, limits.Monthly-monthlyUsage),
		DailyExceeded:    dailyUsage > limits.Daily,
		MonthlyExceeded:  monthlyUsage > limits.Monthly,
	}
}

// Exceeded reports whether either limit is exceeded.
func (s BudgetStatus) Exceeded() bool {
	return s.DailyExceeded || s.MonthlyExceeded
}
