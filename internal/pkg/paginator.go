package pkg

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

const PageSize = 10

// MaxPage 更大的页码按 MaxPage 处理，保证 Offset 不溢出
const MaxPage = math.MaxInt / PageSize

// Page 一页数据；超出最后一页时 Items 为空
type Page[T any] struct {
	Items       []T   `json:"items"`
	Number      int   `json:"number"`
	Total       int64 `json:"total"`
	NumPages    int   `json:"num_pages"`
	HasPrevious bool  `json:"has_previous"`
	HasNext     bool  `json:"has_next"`
}

// ParsePage 解析页码，缺省、非数字或小于 1 时返回 1；超大页码截断为 MaxPage
func ParsePage(raw string) int {
	n, err := strconv.Atoi(raw)
	if errors.Is(err, strconv.ErrRange) && !strings.HasPrefix(raw, "-") {
		return MaxPage
	}
	if err != nil || n < 1 {
		return 1
	}
	return min(n, MaxPage)
}

// Offset 返回页码对应的偏移量
func Offset(page, size int) int {
	if page < 1 {
		page = 1
	}
	if size > 0 && page-1 > math.MaxInt/size {
		return math.MaxInt
	}
	return (page - 1) * size
}

// NumPages 至少一页，即使没有数据
func NumPages(total int64, size int) int {
	if total <= 0 {
		return 1
	}
	return int((total + int64(size) - 1) / int64(size))
}

func NewPage[T any](items []T, number int, total int64, size int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := NumPages(total, size)
	return Page[T]{
		Items:       items,
		Number:      number,
		Total:       total,
		NumPages:    pages,
		HasPrevious: number > 1 && number <= pages,
		HasNext:     number < pages,
	}
}
