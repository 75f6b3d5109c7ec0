package handlers

import (
	"net/http"
	"strconv"
)

const maxPageSize = 100

// PaginationParams 分页参数
type PaginationParams struct {
	Page     int // 页码（从1开始）
	PageSize int // 每页数量
	Offset   int // 计算出的偏移量
}

// GetPagination 从请求获取分页参数；未带 page 与 page_size 时 ok 为 false
func GetPagination(r *http.Request, defaultPageSize int) (PaginationParams, bool) {
	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("page_size") == "" {
		return PaginationParams{}, false
	}

	page := 1
	pageSize := defaultPageSize
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if ps, err := strconv.Atoi(q.Get("page_size")); err == nil && ps > 0 {
		pageSize = ps
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
	}, true
}

// PageInfo 分页信息
type PageInfo struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

func calculateTotalPages(totalItems, pageSize int) int {
	if totalItems <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalItems + pageSize - 1) / pageSize
}

// paginate 返回当前页的切片区间与分页信息
func paginate(totalItems int, params PaginationParams) (start, end int, info PageInfo) {
	totalPages := calculateTotalPages(totalItems, params.PageSize)
	start = params.Offset
	if start > totalItems {
		start = totalItems
	}
	end = start + params.PageSize
	if end > totalItems {
		end = totalItems
	}
	return start, end, PageInfo{
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
