package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/fintrack/fintrack/internal/cache"
	"github.com/fintrack/fintrack/internal/domain/transaction"
	"github.com/fintrack/fintrack/internal/http/middlewares"
	"github.com/fintrack/fintrack/internal/observability"
	"github.com/gin-gonic/gin"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	defaultMonths    = 6
	maxMonths        = 24
)

type TransactionStore interface {
	Create(ctx context.Context, userID string, req transaction.CreateRequest) (transaction.Transaction, error)
	GetByID(ctx context.Context, id, userID string) (transaction.Transaction, error)
	List(ctx context.Context, userID string, f transaction.ListFilter) ([]transaction.Transaction, error)
	Count(ctx context.Context, userID string, f transaction.ListFilter) (int, error)
	Update(ctx context.Context, id, userID string, req transaction.UpdateRequest) (transaction.Transaction, error)
	Delete(ctx context.Context, id, userID string) error
	Summary(ctx context.Context, userID string, f transaction.SummaryFilter) (transaction.Summary, error)
	CategoryBreakdown(ctx context.Context, userID string, f transaction.BreakdownFilter) ([]transaction.CategoryTotal, error)
	SpendingTrends(ctx context.Context, userID string, months int) ([]transaction.TrendPoint, error)
	MonthlySummary(ctx context.Context, userID string, months int) ([]transaction.MonthlyTotal, error)
}

type TransactionsHandler struct {
	store TransactionStore
	cache cache.Store
	prom  *observability.Prom
}

func NewTransactionsHandler(store TransactionStore, cacheStore cache.Store, prom *observability.Prom) *TransactionsHandler {
	return &TransactionsHandler{store: store, cache: cacheStore, prom: prom}
}

func (h *TransactionsHandler) Create(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	var req transaction.CreateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	t, err := h.store.Create(cctx, userID, req)

	if err != nil {
		RespondInternal(ctx, "Failed to create transaction", err)
		return
	}

	h.invalidateAnalytics(cctx, userID)

	RespondData(ctx, http.StatusCreated, "Transaction created successfully", t)
}

func (h *TransactionsHandler) List(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	f, err := parseListFilter(ctx)

	if err != nil {
		RespondBadRequest(ctx, err.Error())
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	var (
		items []transaction.Transaction
		total int
	)

	err = h.observe("list", func() error {
		var listErr error
		items, listErr = h.store.List(cctx, userID, f)

		if listErr != nil {
			return listErr
		}

		// total is computed independently of the page window
		total, listErr = h.store.Count(cctx, userID, f)
		return listErr
	})

	if err != nil {
		RespondInternal(ctx, "Failed to fetch transactions", err)
		return
	}

	RespondPage(ctx, items, transaction.Pagination{
		Page:  f.Page,
		Limit: f.Limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(f.Limit))),
	})
}

func (h *TransactionsHandler) GetByID(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	t, err := h.store.GetByID(cctx, ctx.Param("id"), userID)

	if err != nil {
		// not mine and not there look identical on purpose
		if errors.Is(err, transaction.ErrNotFound) {
			RespondNotFound(ctx, "Transaction not found")
			return
		}

		RespondInternal(ctx, "Failed to fetch transaction", err)
		return
	}

	RespondData(ctx, http.StatusOK, "", t)
}

func (h *TransactionsHandler) Update(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	var req transaction.UpdateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	t, err := h.store.Update(cctx, ctx.Param("id"), userID, req)

	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			RespondNotFound(ctx, "Transaction not found")
			return
		}

		RespondInternal(ctx, "Failed to update transaction", err)
		return
	}

	h.invalidateAnalytics(cctx, userID)

	RespondData(ctx, http.StatusOK, "Transaction updated successfully", t)
}

func (h *TransactionsHandler) Delete(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	err := h.store.Delete(cctx, ctx.Param("id"), userID)

	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			RespondNotFound(ctx, "Transaction not found")
			return
		}

		RespondInternal(ctx, "Failed to delete transaction", err)
		return
	}

	h.invalidateAnalytics(cctx, userID)

	RespondData(ctx, http.StatusOK, "Transaction deleted successfully", nil)
}

func (h *TransactionsHandler) Summary(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	f, err := parseSummaryFilter(ctx)

	if err != nil {
		RespondBadRequest(ctx, err.Error())
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	var s transaction.Summary

	served := h.cached(cctx, userID, "summary", ctx.Request.URL.RawQuery, &s, func() (interface{}, error) {
		err := h.observe("summary", func() error {
			var qerr error
			s, qerr = h.store.Summary(cctx, userID, f)
			return qerr
		})
		return s, err
	})

	if !served {
		RespondInternal(ctx, "Failed to fetch financial summary", nil)
		return
	}

	RespondData(ctx, http.StatusOK, "", s)
}

func (h *TransactionsHandler) CategoryBreakdown(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	f, err := parseBreakdownFilter(ctx)

	if err != nil {
		RespondBadRequest(ctx, err.Error())
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	var breakdown []transaction.CategoryTotal

	served := h.cached(cctx, userID, "category-breakdown", ctx.Request.URL.RawQuery, &breakdown, func() (interface{}, error) {
		err := h.observe("category_breakdown", func() error {
			var qerr error
			breakdown, qerr = h.store.CategoryBreakdown(cctx, userID, f)
			return qerr
		})
		return breakdown, err
	})

	if !served {
		RespondInternal(ctx, "Failed to fetch category breakdown", nil)
		return
	}

	RespondData(ctx, http.StatusOK, "", breakdown)
}

func (h *TransactionsHandler) SpendingTrends(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	// monthly is the only supported granularity
	if period := ctx.Query("period"); period != "" && period != "monthly" {
		RespondBadRequest(ctx, "period must be monthly")
		return
	}

	months, err := parseMonths(ctx)

	if err != nil {
		RespondBadRequest(ctx, err.Error())
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	var trends []transaction.TrendPoint

	served := h.cached(cctx, userID, "spending-trends", ctx.Request.URL.RawQuery, &trends, func() (interface{}, error) {
		err := h.observe("spending_trends", func() error {
			var qerr error
			trends, qerr = h.store.SpendingTrends(cctx, userID, months)
			return qerr
		})
		return trends, err
	})

	if !served {
		RespondInternal(ctx, "Failed to fetch spending trends", nil)
		return
	}

	RespondData(ctx, http.StatusOK, "", trends)
}

func (h *TransactionsHandler) MonthlySummary(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	months, err := parseMonths(ctx)

	if err != nil {
		RespondBadRequest(ctx, err.Error())
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	var monthly []transaction.MonthlyTotal

	served := h.cached(cctx, userID, "monthly-summary", ctx.Request.URL.RawQuery, &monthly, func() (interface{}, error) {
		err := h.observe("monthly_summary", func() error {
			var qerr error
			monthly, qerr = h.store.MonthlySummary(cctx, userID, months)
			return qerr
		})
		return monthly, err
	})

	if !served {
		RespondInternal(ctx, "Failed to fetch monthly summary", nil)
		return
	}

	RespondData(ctx, http.StatusOK, "", monthly)
}

// cached serves op results through the analytics cache when one is wired.
// On a hit it unmarshals into out; on a miss it computes, stores and leaves
// the computed value in out. Reports false when compute fails.
func (h *TransactionsHandler) cached(ctx context.Context, userID, op, params string, out interface{}, compute func() (interface{}, error)) bool {
	if h.cache == nil {
		_, err := compute()
		return err == nil
	}

	key := analyticsKey(userID, op, params)

	if raw, ok := h.cache.Get(ctx, key); ok {
		if err := json.Unmarshal(raw, out); err == nil {
			h.countCache(op, "hit")
			return true
		}
	}

	h.countCache(op, "miss")

	val, err := compute()

	if err != nil {
		return false
	}

	if raw, err := json.Marshal(val); err == nil {
		h.cache.Set(ctx, key, raw)
	}

	return true
}

func (h *TransactionsHandler) invalidateAnalytics(ctx context.Context, userID string) {
	if h.cache != nil {
		h.cache.DeletePrefix(ctx, "analytics:"+userID+":")
	}
}

func analyticsKey(userID, op, params string) string {
	return "analytics:" + userID + ":" + op + ":" + params
}

func (h *TransactionsHandler) observe(op string, fn func() error) error {
	if h.prom == nil {
		return fn()
	}
	return h.prom.ObserveDB(op, fn)
}

func (h *TransactionsHandler) countCache(op, outcome string) {
	if h.prom != nil {
		h.prom.CacheLookups.WithLabelValues(op, outcome).Inc()
	}
}

// query-string parsing

func parseListFilter(ctx *gin.Context) (transaction.ListFilter, error) {
	f := transaction.ListFilter{
		Page:      1,
		Limit:     defaultPageLimit,
		SortBy:    "date",
		SortOrder: "desc",
	}

	if v := ctx.Query("page"); v != "" {
		n, err := strconv.Atoi(v)

		if err != nil || n < 1 {
			return f, errors.New("page must be a positive integer")
		}

		f.Page = n
	}

	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)

		if err != nil || n < 1 || n > maxPageLimit {
			return f, errors.New("limit must be between 1 and 100")
		}

		f.Limit = n
	}

	if v := ctx.Query("type"); v != "" {
		if v != transaction.TypeIncome && v != transaction.TypeExpense {
			return f, errors.New("type must be either income or expense")
		}

		f.Type = &v
	}

	if v := ctx.Query("category"); v != "" {
		f.Category = &v
	}

	var err error

	if f.StartDate, err = parseDateQuery(ctx, "startDate"); err != nil {
		return f, err
	}

	if f.EndDate, err = parseDateQuery(ctx, "endDate"); err != nil {
		return f, err
	}

	if v := ctx.Query("search"); v != "" {
		f.Search = &v
	}

	if v := ctx.Query("sortBy"); v != "" {
		f.SortBy = v
	}

	if v := ctx.Query("sortOrder"); v != "" {
		f.SortOrder = v
	}

	return f, nil
}

func parseSummaryFilter(ctx *gin.Context) (transaction.SummaryFilter, error) {
	var (
		f   transaction.SummaryFilter
		err error
	)

	if f.StartDate, err = parseDateQuery(ctx, "startDate"); err != nil {
		return f, err
	}

	f.EndDate, err = parseDateQuery(ctx, "endDate")

	return f, err
}

func parseBreakdownFilter(ctx *gin.Context) (transaction.BreakdownFilter, error) {
	var (
		f   transaction.BreakdownFilter
		err error
	)

	if v := ctx.Query("type"); v != "" {
		if v != transaction.TypeIncome && v != transaction.TypeExpense {
			return f, errors.New("type must be either income or expense")
		}

		f.Type = &v
	}

	if f.StartDate, err = parseDateQuery(ctx, "startDate"); err != nil {
		return f, err
	}

	f.EndDate, err = parseDateQuery(ctx, "endDate")

	return f, err
}

func parseMonths(ctx *gin.Context) (int, error) {
	months := defaultMonths

	if v := ctx.Query("months"); v != "" {
		n, err := strconv.Atoi(v)

		if err != nil || n < 1 || n > maxMonths {
			return 0, errors.New("months must be between 1 and 24")
		}

		months = n
	}

	return months, nil
}

// accepts RFC3339 or a bare calendar date
func parseDateQuery(ctx *gin.Context, name string) (*time.Time, error) {
	v := ctx.Query(name)

	if v == "" {
		return nil, nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}

	return nil, errors.New(name + " must be an RFC3339 timestamp or YYYY-MM-DD date")
}
