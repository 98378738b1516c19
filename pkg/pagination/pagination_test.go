package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query  string
		limit  int
		offset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=50&offset=10", 50, 10},
		{"?per_page=25&page=3", 25, 50},
		{"?limit=10&offset=5&page=4", 10, 5},
		{"?limit=1000", MaxLimit, 0},
		{"?limit=-3&offset=-8", DefaultLimit, 0},
		{"?limit=abc&page=xyz", DefaultLimit, 0},
		{"?page=0", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := paramsFor(tt.query)
			if p.Limit != tt.limit {
				t.Errorf("limit = %d, want %d", p.Limit, tt.limit)
			}
			if p.Offset != tt.offset {
				t.Errorf("offset = %d, want %d", p.Offset, tt.offset)
			}
		})
	}
}

func TestParams_Page(t *testing.T) {
	if got := (Params{Limit: 10, Offset: 0}).Page(); got != 1 {
		t.Errorf("Page() = %d, want 1", got)
	}
	if got := (Params{Limit: 10, Offset: 25}).Page(); got != 3 {
		t.Errorf("Page() = %d, want 3", got)
	}
	if got := (Params{}).Page(); got != 1 {
		t.Errorf("zero params Page() = %d, want 1", got)
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 45, 20, 20)
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.CurrentPage != 2 || resp.LastPage != 3 {
		t.Errorf("pages = %d/%d, want 2/3", resp.CurrentPage, resp.LastPage)
	}
	if !resp.HasMore {
		t.Error("expected has_more on page 2 of 3")
	}

	last := NewResponse(nil, 45, 20, 40)
	if last.HasMore {
		t.Error("expected no more results on the last page")
	}

	empty := NewResponse([]string{}, 0, 20, 0)
	if empty.LastPage != 1 || empty.HasMore {
		t.Errorf("empty result: last_page=%d has_more=%v", empty.LastPage, empty.HasMore)
	}
}
