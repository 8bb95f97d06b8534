package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes a direction to ASC or DESC. Anything else,
// including empty input, yields def.
func ValidateSortOrder(orderDir, def string) string {
	switch strings.ToUpper(strings.TrimSpace(orderDir)) {
	case "ASC":
		return "ASC"
	case "DESC":
		return "DESC"
	default:
		return def
	}
}

// ValidateSortField checks sortField against a whitelist of column names.
// Returns defaultField if the input is empty or not allowed.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// AgentSortFields are the agent list columns callers may sort by
var AgentSortFields = map[string]bool{
	"serial_number": true,
	"name_key":      true,
	"created_at":    true,
	"total_owed":    true,
	"total_paid":    true,
}

// OrderSortFields are the order list columns callers may sort by
var OrderSortFields = map[string]bool{
	"sequence_number":        true,
	"created_at":             true,
	"assigned_at":            true,
	"status":                 true,
	"customer_charge_amount": true,
}

// orderClause builds a safe ORDER BY clause. tiebreak keeps paging stable
// when the chosen column has duplicates.
func orderClause(field, dir string, allowed map[string]bool, defaultField, defaultDir, tiebreak string) string {
	col := ValidateSortField(field, allowed, defaultField)
	clause := col + " " + ValidateSortOrder(dir, defaultDir)
	if tiebreak != "" && col != tiebreak {
		clause += ", " + tiebreak + " ASC"
	}
	return clause
}
