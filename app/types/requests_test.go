package types

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestNewProviderNotificationRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewBufferString(`{"type":"invoice.paid"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("provider")
	ctx.SetParamValues("Stripe")

	parsed, err := NewProviderNotificationRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.Provider != "stripe" {
		t.Fatalf("expected lower-cased provider, got %q", parsed.Provider)
	}
	if parsed.Signature != "t=1,v1=abc" {
		t.Fatalf("unexpected signature: %q", parsed.Signature)
	}
	if string(parsed.Payload) != `{"type":"invoice.paid"}` {
		t.Fatalf("payload must be the raw body, got %q", parsed.Payload)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewProviderNotificationRequestFallbackSignatureHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/webhooks/robokassa", bytes.NewBufferString("OutSum=1.00"))
	req.Header.Set("X-Provider-Signature", "abc123")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("provider")
	ctx.SetParamValues("robokassa")

	parsed, err := NewProviderNotificationRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.Signature != "abc123" {
		t.Fatalf("unexpected signature: %q", parsed.Signature)
	}
}

func TestProviderNotificationValidate(t *testing.T) {
	req := &ProviderNotificationRequest{}
	if err := req.Validate(); err == nil {
		t.Fatal("expected provider validation error")
	}

	req.Provider = "stripe"
	if err := req.Validate(); err == nil {
		t.Fatal("expected payload validation error")
	}

	req.Payload = []byte(`{}`)
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewUserScopedRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/internal/users/42/entitlement", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("42")

	parsed, err := NewUserScopedRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.UserID != 42 {
		t.Fatalf("unexpected user id: %d", parsed.UserID)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	ctx.SetParamValues("abc")
	if _, err := NewUserScopedRequestFromContext(ctx); err == nil {
		t.Fatal("expected parse error for non-numeric id")
	}

	zero := &UserScopedRequest{}
	if err := zero.Validate(); err == nil {
		t.Fatal("expected validation error for zero id")
	}
}

func TestNewListUserPaymentsRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/internal/users/42/payments?limit=20&offset=3", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("42")

	parsed, err := NewListUserPaymentsRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.Limit != 20 || parsed.Offset != 3 {
		t.Fatalf("unexpected paging: %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestListUserPaymentsValidateBounds(t *testing.T) {
	req := &ListUserPaymentsRequest{UserID: 42, Limit: 500}
	if err := req.Validate(); err == nil {
		t.Fatal("expected limit validation error")
	}

	req = &ListUserPaymentsRequest{UserID: 42, Limit: 50, Offset: -1}
	if err := req.Validate(); err == nil {
		t.Fatal("expected offset validation error")
	}
}
