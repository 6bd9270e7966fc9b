package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).With(slog.String("component", "test"))

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r-1", Method: "POST", Path: "/auth/login"})
	ctx = WithSessionData(ctx, &SessionData{Status: "authenticated", Role: "BUSINESS_OWNER", ActiveBusiness: "b1"})
	log.InfoContext(ctx, "probe")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	req, _ := rec["req"].(map[string]any)
	if req["id"] != "r-1" || req["path"] != "/auth/login" {
		t.Fatalf("req group = %v", rec["req"])
	}
	sess, _ := rec["sess"].(map[string]any)
	if sess["role"] != "BUSINESS_OWNER" || sess["active_business"] != "b1" {
		t.Fatalf("sess group = %v", rec["sess"])
	}
	if rec["component"] != "test" {
		t.Fatalf("attrs from With lost: %v", rec)
	}
}

func TestHandlerWithoutContextData(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})
	log.Info("plain")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if _, ok := rec["req"]; ok {
		t.Fatal("unexpected req group")
	}
	if _, ok := rec["sess"]; ok {
		t.Fatal("unexpected sess group")
	}
}

func TestRequestID(t *testing.T) {
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("RequestID() = %q on empty context", got)
	}
	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "abc"})
	if got := RequestID(ctx); got != "abc" {
		t.Fatalf("RequestID() = %q, want abc", got)
	}
}
