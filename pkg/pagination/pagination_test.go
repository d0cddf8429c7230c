package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/orders?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=5&offset=10", 5, 10},
		{"limit=500", MaxLimit, 0},
		{"limit=-3&offset=-1", DefaultLimit, 0},
		{"limit=10&page=3", 10, 20},
		{"limit=10&page=3&offset=5", 10, 5},
		{"page=0", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.query)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("%q: got limit=%d offset=%d, want limit=%d offset=%d",
				tt.query, p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if !NewResponse(nil, 30, 20, 0).HasMore {
		t.Error("expected more results after the first page")
	}
	if NewResponse(nil, 30, 20, 20).HasMore {
		t.Error("expected last page to report no more results")
	}
}

func TestParams_Window(t *testing.T) {
	start, end := Params{Limit: 10, Offset: 5}.Window(12)
	if start != 5 || end != 12 {
		t.Errorf("expected [5,12), got [%d,%d)", start, end)
	}
	start, end = Params{Limit: 10, Offset: 50}.Window(12)
	if start != 12 || end != 12 {
		t.Errorf("expected empty window at 12, got [%d,%d)", start, end)
	}
}
