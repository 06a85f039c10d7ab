package scraper

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnavailable 表示上游站点不可达，或返回了非成功 / 重定向状态。
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ParseError 表示上游页面不符合预期的微格式。
// 任何一行解析失败都会中止整个页面的提取。
type ParseError struct {
	Page   string // "servers" or "mirrors"
	Row    int    // -1 for page-level structure errors
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("parse %s page: %s: %s", e.Page, e.Field, e.Reason)
	}
	return fmt.Sprintf("parse %s page: row %d: %s: %s", e.Page, e.Row, e.Field, e.Reason)
}

func pageError(page, field, reason string) *ParseError {
	return &ParseError{Page: page, Row: -1, Field: field, Reason: reason}
}

func rowError(page string, row int, field string, err error) *ParseError {
	return &ParseError{Page: page, Row: row, Field: field, Reason: err.Error()}
}
