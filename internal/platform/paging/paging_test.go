package paging

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func Test_FromQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name  string
		query string
		want  Page
	}{
		{name: "defaults", query: "", want: Page{Number: 0, Size: DefaultSize, Order: "desc"}},
		{name: "explicit", query: "?page=2&size=5&order=ASC", want: Page{Number: 2, Size: 5, Order: "asc"}},
		{name: "garbage_falls_back", query: "?page=x&size=-3&order=sideways", want: Page{Number: 0, Size: DefaultSize, Order: "desc"}},
		{name: "size_capped", query: "?size=1000", want: Page{Number: 0, Size: MaxSize, Order: "desc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/books"+tt.query, nil)
			assert.Equal(t, tt.want, FromQuery(c))
		})
	}
}

func Test_NewResponse(t *testing.T) {
	p := Page{Number: 1, Size: 2, Order: "desc"}
	res := NewResponse([]int{3, 4}, p, 5)
	assert.Equal(t, 3, res.TotalPages)
	assert.False(t, res.First)
	assert.False(t, res.Last)
	assert.Equal(t, uint(2), p.Offset())

	empty := NewResponse[int](nil, Page{Size: 10}, 0)
	assert.NotNil(t, empty.Content)
	assert.True(t, empty.First)
	assert.True(t, empty.Last)
}
