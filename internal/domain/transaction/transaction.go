package transaction

import (
	"errors"
	"time"
)

const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Amount      float64   `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	Tags        []string  `json:"tags,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Amount signed by type; expenses come out negative.
func (t Transaction) SignedAmount() float64 {
	if t.Type == TypeExpense {
		return -t.Amount
	}
	return t.Amount
}

var ErrNotFound = errors.New("transaction not found")

type CreateRequest struct {
	Amount      float64    `json:"amount" binding:"required,gt=0"`
	Type        string     `json:"type" binding:"required,oneof=income expense"`
	Description string     `json:"description" binding:"required,max=200"`
	Category    string     `json:"category" binding:"required,max=50"`
	Date        *time.Time `json:"date" binding:"omitempty"`
	Tags        []string   `json:"tags" binding:"omitempty,dive,max=30"`
	Notes       string     `json:"notes" binding:"omitempty,max=500"`
}

// partial update; nil fields are left untouched
type UpdateRequest struct {
	Amount      *float64   `json:"amount" binding:"omitempty,gt=0"`
	Type        *string    `json:"type" binding:"omitempty,oneof=income expense"`
	Description *string    `json:"description" binding:"omitempty,min=1,max=200"`
	Category    *string    `json:"category" binding:"omitempty,min=1,max=50"`
	Date        *time.Time `json:"date" binding:"omitempty"`
	Tags        []string   `json:"tags" binding:"omitempty,dive,max=30"`
	Notes       *string    `json:"notes" binding:"omitempty,max=500"`
}

// optional filters combine with AND; pointers are nil when absent
type ListFilter struct {
	Type      *string
	Category  *string
	StartDate *time.Time
	EndDate   *time.Time
	Search    *string

	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type Summary struct {
	TotalIncome      float64 `json:"totalIncome"`
	TotalExpenses    float64 `json:"totalExpenses"`
	Balance          float64 `json:"balance"`
	TransactionCount int     `json:"transactionCount"`
}

type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Count    int     `json:"count"`
}

// one calendar month of a trend series; Period is the first day of the month
type TrendPoint struct {
	Period   time.Time `json:"period"`
	Income   float64   `json:"income"`
	Expenses float64   `json:"expenses"`
}

type MonthlyTotal struct {
	Month        time.Time `json:"month"`
	Income       float64   `json:"income"`
	Expenses     float64   `json:"expenses"`
	IncomeCount  int       `json:"incomeCount"`
	ExpenseCount int       `json:"expenseCount"`
	Net          float64   `json:"net"`
}

type SummaryFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
}

type BreakdownFilter struct {
	Type      *string
	StartDate *time.Time
	EndDate   *time.Time
}
