package utils

import (
	"math"
	"net/http"
	"strconv"
)

func GetPaginationDetails(r *http.Request) (int, int, int) {
	limitStr := r.URL.Query().Get("limit")
	limit := 10
	if val, err := strconv.Atoi(limitStr); err == nil && val > 0 {
		limit = val
	}
	if limit > 100 {
		limit = 100
	}

	pageStr := r.URL.Query().Get("page")
	page := 1
	if val, err := strconv.Atoi(pageStr); err == nil && val > 0 {
		page = val
	}

	offset := (page - 1) * limit
	return limit, offset, page
}

func PaginationMeta(total int64, limit, page int) map[string]interface{} {
	totalPages := int(math.Ceil(float64(total) / float64(limit)))

	return map[string]interface{}{
		"total_items":  total,
		"total_pages":  totalPages,
		"current_page": page,
		"limit":        limit,
	}
}
