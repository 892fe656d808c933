package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fintrack/fintrack/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const txColumns = `id, user_id, amount, type, description, category, date,
	tags, notes, created_at, updated_at`

// sortable column whitelist; anything else falls back to date
var sortColumns = map[string]string{
	"date":        "date",
	"amount":      "amount",
	"description": "description",
	"category":    "category",
	"type":        "type",
	"createdAt":   "created_at",
}

type TransactionsRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionsRepo(pool *pgxpool.Pool) *TransactionsRepo {
	return &TransactionsRepo{pool: pool}
}

func scanTransaction(row pgx.Row) (transaction.Transaction, error) {
	var t transaction.Transaction

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Amount,
		&t.Type,
		&t.Description,
		&t.Category,
		&t.Date,
		&t.Tags,
		&t.Notes,
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transaction.Transaction{}, transaction.ErrNotFound
		}

		return transaction.Transaction{}, err
	}
	return t, nil
}

func (r *TransactionsRepo) Create(ctx context.Context, userID string, req transaction.CreateRequest) (transaction.Transaction, error) {
	id := uuid.NewString()

	// date defaults to creation time when the caller omits it
	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}

	return scanTransaction(r.pool.QueryRow(ctx,
		`INSERT INTO transactions (id, user_id, amount, type, description, category, date, tags, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+txColumns,
		id, userID, req.Amount, req.Type, req.Description, req.Category, date, tags, req.Notes,
	))
}

// GetByID scopes by owner; a transaction owned by someone else looks exactly
// like a missing one.
func (r *TransactionsRepo) GetByID(ctx context.Context, id, userID string) (transaction.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1 AND user_id = $2`,
		id, userID))
}

// filterClauses builds the WHERE tail shared by List and Count. The returned
// position is the next free placeholder index.
func filterClauses(userID string, f transaction.ListFilter) (conds []string, args []interface{}, position int) {
	conds = append(conds, "user_id = $1")
	args = append(args, userID)
	position = 2

	if f.Type != nil {
		conds = append(conds, fmt.Sprintf("type = $%d", position))
		args = append(args, *f.Type)
		position++
	}

	if f.Category != nil {
		conds = append(conds, fmt.Sprintf("category = $%d", position))
		args = append(args, *f.Category)
		position++
	}

	if f.StartDate != nil {
		conds = append(conds, fmt.Sprintf("date >= $%d", position))
		args = append(args, *f.StartDate)
		position++
	}

	if f.EndDate != nil {
		conds = append(conds, fmt.Sprintf("date <= $%d", position))
		args = append(args, *f.EndDate)
		position++
	}

	if f.Search != nil {
		// case-insensitive substring match on description
		conds = append(conds, fmt.Sprintf("description ILIKE '%%' || $%d || '%%'", position))
		args = append(args, *f.Search)
		position++
	}

	return conds, args, position
}

func (r *TransactionsRepo) List(ctx context.Context, userID string, f transaction.ListFilter) ([]transaction.Transaction, error) {
	conds, args, position := filterClauses(userID, f)

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = "date"
	}

	direction := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		direction = "ASC"
	}

	query := `SELECT ` + txColumns + ` FROM transactions WHERE ` + strings.Join(conds, " AND ")

	// id tiebreak keeps page boundaries stable
	query += fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		column, direction, direction, position, position+1)

	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.pool.Query(ctx, query, args...)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	output := make([]transaction.Transaction, 0, f.Limit)

	for rows.Next() {
		t, err := scanTransaction(rows)

		if err != nil {
			return nil, err
		}

		output = append(output, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return output, nil
}

// Count is computed independently of the page window.
func (r *TransactionsRepo) Count(ctx context.Context, userID string, f transaction.ListFilter) (int, error) {
	conds, args, _ := filterClauses(userID, f)

	var total int

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE `+strings.Join(conds, " AND "),
		args...,
	).Scan(&total)

	if err != nil {
		return 0, err
	}

	return total, nil
}

func (r *TransactionsRepo) Update(ctx context.Context, id, userID string, req transaction.UpdateRequest) (transaction.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`UPDATE transactions
		 SET amount      = COALESCE($3, amount),
		     type        = COALESCE($4, type),
		     description = COALESCE($5, description),
		     category    = COALESCE($6, category),
		     date        = COALESCE($7, date),
		     tags        = COALESCE($8, tags),
		     notes       = COALESCE($9, notes),
		     updated_at  = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+txColumns,
		id, userID, req.Amount, req.Type, req.Description, req.Category, req.Date, req.Tags, req.Notes,
	))
}

// Delete is permanent; there is no soft-delete for transactions.
func (r *TransactionsRepo) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return transaction.ErrNotFound
	}

	return nil
}

// Summary sums and counts per type over the (optionally date-bounded) set.
// A type with no matches contributes zero, never an absent value.
func (r *TransactionsRepo) Summary(ctx context.Context, userID string, f transaction.SummaryFilter) (transaction.Summary, error) {
	conds := []string{"user_id = $1"}
	args := []interface{}{userID}
	position := 2

	if f.StartDate != nil {
		conds = append(conds, fmt.Sprintf("date >= $%d", position))
		args = append(args, *f.StartDate)
		position++
	}

	if f.EndDate != nil {
		conds = append(conds, fmt.Sprintf("date <= $%d", position))
		args = append(args, *f.EndDate)
		position++
	}

	var s transaction.Summary

	err := r.pool.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0),
			COUNT(*)
		 FROM transactions
		 WHERE `+strings.Join(conds, " AND "),
		args...,
	).Scan(&s.TotalIncome, &s.TotalExpenses, &s.TransactionCount)

	if err != nil {
		return transaction.Summary{}, err
	}

	s.Balance = s.TotalIncome - s.TotalExpenses

	return s, nil
}

// CategoryBreakdown groups by category, largest summed amount first.
func (r *TransactionsRepo) CategoryBreakdown(ctx context.Context, userID string, f transaction.BreakdownFilter) ([]transaction.CategoryTotal, error) {
	conds := []string{"user_id = $1"}
	args := []interface{}{userID}
	position := 2

	if f.Type != nil {
		conds = append(conds, fmt.Sprintf("type = $%d", position))
		args = append(args, *f.Type)
		position++
	}

	if f.StartDate != nil {
		conds = append(conds, fmt.Sprintf("date >= $%d", position))
		args = append(args, *f.StartDate)
		position++
	}

	if f.EndDate != nil {
		conds = append(conds, fmt.Sprintf("date <= $%d", position))
		args = append(args, *f.EndDate)
		position++
	}

	rows, err := r.pool.Query(ctx,
		`SELECT category, SUM(amount), COUNT(*)
		 FROM transactions
		 WHERE `+strings.Join(conds, " AND ")+`
		 GROUP BY category
		 ORDER BY SUM(amount) DESC`,
		args...,
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	output := make([]transaction.CategoryTotal, 0)

	for rows.Next() {
		var c transaction.CategoryTotal

		if err := rows.Scan(&c.Category, &c.Amount, &c.Count); err != nil {
			return nil, err
		}

		output = append(output, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return output, nil
}

// trailingMonths gives the window for trends and monthly summaries:
// now back through N calendar months.
func trailingMonths(months int) (time.Time, time.Time) {
	end := time.Now().UTC()
	start := end.AddDate(0, -months, 0)
	return start, end
}

// SpendingTrends buckets the trailing window by calendar month and splits
// each month into income and expenses columns, zero-filled. Chronological
// ascending; each period is the first day of its month.
func (r *TransactionsRepo) SpendingTrends(ctx context.Context, userID string, months int) ([]transaction.TrendPoint, error) {
	start, end := trailingMonths(months)

	rows, err := r.pool.Query(ctx,
		`SELECT date_trunc('month', date) AS period,
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0) AS income,
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0) AS expenses
		 FROM transactions
		 WHERE user_id = $1 AND date >= $2 AND date <= $3
		 GROUP BY period
		 ORDER BY period ASC`,
		userID, start, end,
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	output := make([]transaction.TrendPoint, 0)

	for rows.Next() {
		var p transaction.TrendPoint

		if err := rows.Scan(&p.Period, &p.Income, &p.Expenses); err != nil {
			return nil, err
		}

		output = append(output, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return output, nil
}

// MonthlySummary is SpendingTrends plus per-type counts and net per month.
func (r *TransactionsRepo) MonthlySummary(ctx context.Context, userID string, months int) ([]transaction.MonthlyTotal, error) {
	start, end := trailingMonths(months)

	rows, err := r.pool.Query(ctx,
		`SELECT date_trunc('month', date) AS month,
			COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0) AS income,
			COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0) AS expenses,
			COUNT(*) FILTER (WHERE type = 'income') AS income_count,
			COUNT(*) FILTER (WHERE type = 'expense') AS expense_count
		 FROM transactions
		 WHERE user_id = $1 AND date >= $2 AND date <= $3
		 GROUP BY month
		 ORDER BY month ASC`,
		userID, start, end,
	)

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	output := make([]transaction.MonthlyTotal, 0)

	for rows.Next() {
		var m transaction.MonthlyTotal

		if err := rows.Scan(&m.Month, &m.Income, &m.Expenses, &m.IncomeCount, &m.ExpenseCount); err != nil {
			return nil, err
		}

		m.Net = m.Income - m.Expenses

		output = append(output, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return output, nil
}
