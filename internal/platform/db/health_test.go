package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type downPool struct{}

func (downPool) Ping(context.Context) error { return errors.New("dial tcp 10.0.0.5:5432: connection refused") }
func (downPool) Stat() *pgxpool.Stat          { panic("Stat must not be called when the ping fails") }

func TestHealthHandler_Unreachable(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := HealthHandler(downPool{}, zerolog.Nop())(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["success"] != false || body["database"] != "unreachable" {
		t.Errorf("unexpected body: %v", body)
	}
	if _, leaked := body["error"]; leaked {
		t.Error("ping error must not be exposed")
	}
}
