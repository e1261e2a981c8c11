package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		limit   int
		offset  int
		page    int
		perPage int
	}{
		{"defaults", "/tokens", 25, 0, 1, 25},
		{"explicit page", "/tokens?page=3", 25, 50, 3, 25},
		{"explicit per_page", "/tokens?per_page=10", 10, 0, 1, 10},
		{"both", "/tokens?page=2&per_page=40", 40, 40, 2, 40},
		{"per_page capped", "/tokens?per_page=500", 100, 0, 1, 100},
		{"garbage ignored", "/tokens?page=abc&per_page=-5", 25, 0, 1, 25},
		{"zero page ignored", "/tokens?page=0", 25, 0, 1, 25},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tc.url, nil)
			limit, offset, page, perPage := parsePagination(r)
			assert.Equal(t, tc.limit, limit)
			assert.Equal(t, tc.offset, offset)
			assert.Equal(t, tc.page, page)
			assert.Equal(t, tc.perPage, perPage)
		})
	}
}
