package instrument

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"qindex/internal/store"
)

// QueryLogHandler exposes the query log over REST.
type QueryLogHandler struct {
	db      *sql.DB
	dialect store.Dialect
}

// NewQueryLogHandler creates a QueryLogHandler backed by the given db and dialect.
func NewQueryLogHandler(db *sql.DB, dialect store.Dialect) *QueryLogHandler {
	return &QueryLogHandler{db: db, dialect: dialect}
}

// List handles GET /api/admin/query-log — list logged queries with filters (admin only).
func (h *QueryLogHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var conditions []string
	pb := h.dialect.NewParamBuilder()

	for _, filter := range []struct{ param, expr string }{
		{"result_type", "result_type = %s"},
		{"status", "status = %s"},
		{"from", "created_at >= %s"},
		{"to", "created_at <= %s"},
	} {
		if v := c.Query(filter.param); v != "" {
			conditions = append(conditions, fmt.Sprintf(filter.expr, pb.Add(v)))
		}
	}
	if v := c.Query("min_duration_ms"); v != "" {
		ms, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": "min_duration_ms must be a number"}})
		}
		conditions = append(conditions, fmt.Sprintf("duration_ms >= %s", pb.Add(ms)))
	}
	filterCount := pb.Count()

	// Pagination
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	if perPage > 100 {
		perPage = 100
	}
	offset := (page - 1) * perPage

	orderBy := "created_at DESC, id"
	switch c.Query("sort", "-created_at") {
	case "created_at":
		orderBy = "created_at ASC, id"
	case "-duration_ms":
		orderBy = "duration_ms DESC, id"
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	dataSQL := fmt.Sprintf(
		"SELECT id, result_type, where_text, sql_text, param_count, row_count, count_only, duration_ms, status, error, created_at FROM query_log%s ORDER BY %s LIMIT %s OFFSET %s",
		whereClause, orderBy, pb.Add(perPage), pb.Add(offset),
	)
	args := pb.Params()

	countSQL := fmt.Sprintf("SELECT COUNT(*) AS count, %s AS errors, %s AS count_only_n FROM query_log%s",
		h.dialect.FilterCountExpr("status = 'error'"), h.dialect.FilterCountExpr("count_only"), whereClause)
	countRow, err := store.QueryRow(ctx, h.db, countSQL, args[:filterCount]...)
	if err != nil {
		return fmt.Errorf("count query log: %w", err)
	}

	rows, err := store.QueryRows(ctx, h.db, dataSQL, args...)
	if err != nil {
		return fmt.Errorf("list query log: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	if h.dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, []string{"count_only"})
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":     page,
			"per_page": perPage,
			"total":    toInt(countRow["count"]),
		},
		"summary": fiber.Map{
			"errors":     toInt(countRow["errors"]),
			"count_only": toInt(countRow["count_only_n"]),
		},
	})
}

// toInt safely converts various numeric types to int.
func toInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(val)
		return n
	default:
		return 0
	}
}
