package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinic/internal/domain/catalog"
)

func TestHandler_ListStockOuts(t *testing.T) {
	cat := &mockCatalog{}
	repo := newMockRepo(cat)
	l := NewLedger(repo, cat, zerolog.Nop())
	for i := 0; i < 3; i++ {
		if _, err := l.RecordUsage(context.Background(),
			MaterialUsage{ItemName: "Mask", Category: catalog.CategoryConsumable, Quantity: 1}, UsageContext{}); err != nil {
			t.Fatal(err)
		}
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/stock-outs?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := NewHandler(l).ListStockOuts(c); err != nil {
		t.Fatalf("ListStockOuts: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Total   int               `json:"total"`
		HasMore bool              `json:"has_more"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 3 || len(body.Data) != 2 || !body.HasMore {
		t.Errorf("unexpected page: total=%d len=%d has_more=%v", body.Total, len(body.Data), body.HasMore)
	}
}
