package paging

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	DefaultSize = 10
	MaxSize     = 100

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Page は 0 始まりのページ指定。Order は "asc" か "desc"。
type Page struct {
	Number int
	Size   int
	Order  string
}

// FromQuery: ?page=&size=&order= を読む。不正値はデフォルトに倒す。
func FromQuery(c *gin.Context) Page {
	return Page{
		Number: parseIntDefault(c.Query("page"), 0),
		Size:   parseIntDefault(c.Query("size"), DefaultSize),
		Order:  c.DefaultQuery("order", OrderDesc),
	}.Normalize()
}

func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultSize
	}
	if p.Size > MaxSize {
		p.Size = MaxSize
	}
	if strings.ToLower(p.Order) == OrderAsc {
		p.Order = OrderAsc
	} else {
		p.Order = OrderDesc
	}
	return p
}

func (p Page) Ascending() bool { return p.Order == OrderAsc }

func (p Page) Limit() uint { return uint(p.Size) }

func (p Page) Offset() uint { return uint(p.Number * p.Size) }

type Response[T any] struct {
	Content       []T   `json:"content"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
	First         bool  `json:"first"`
	Last          bool  `json:"last"`
}

func NewResponse[T any](content []T, p Page, total int64) Response[T] {
	if content == nil {
		content = []T{}
	}
	pages := 0
	if p.Size > 0 {
		pages = int((total + int64(p.Size) - 1) / int64(p.Size))
	}
	return Response[T]{
		Content:       content,
		Number:        p.Number,
		Size:          p.Size,
		TotalElements: total,
		TotalPages:    pages,
		First:         p.Number == 0,
		Last:          p.Number >= pages-1,
	}
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
