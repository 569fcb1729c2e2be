package provider

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"testing"
)

const robokassaTestPassword = "password2_test"

func robokassaSign(values url.Values, password2 string) string {
	base := values.Get("OutSum") + ":" + values.Get("InvId") + ":" + password2

	pairs := make([]string, 0, 4)
	for key := range values {
		if strings.HasPrefix(key, "Shp_") {
			pairs = append(pairs, key+"="+values.Get(key))
		}
	}
	sort.Strings(pairs)
	for _, pair := range pairs {
		base += ":" + pair
	}

	sum := md5.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

func robokassaForm(signature string, extra url.Values) []byte {
	values := url.Values{}
	values.Set("OutSum", "299.00")
	values.Set("InvId", "10045")
	for key := range extra {
		values.Set(key, extra.Get(key))
	}
	if signature != "" {
		values.Set("SignatureValue", signature)
	}
	return []byte(values.Encode())
}

func TestRobokassaVerifyAndParseSuccess(t *testing.T) {
	p := NewRobokassaProvider(RobokassaConfig{Password2: robokassaTestPassword})

	extra := url.Values{}
	extra.Set("Shp_user", "42")
	extra.Set("Shp_plan", "pro")
	extra.Set("Shp_interval", "monthly")
	extra.Set("Shp_recurring", "1")

	values := url.Values{}
	values.Set("OutSum", "299.00")
	values.Set("InvId", "10045")
	for key := range extra {
		values.Set(key, extra.Get(key))
	}
	signature := robokassaSign(values, robokassaTestPassword)

	event, err := p.VerifyAndParse(robokassaForm(signature, extra), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.Kind != EventKindPaymentSucceeded {
		t.Fatalf("unexpected kind: %s", event.Kind)
	}
	if event.ExternalInvoiceID != "10045" {
		t.Fatalf("unexpected invoice id: %s", event.ExternalInvoiceID)
	}
	if event.AmountCents != 29900 {
		t.Fatalf("unexpected amount: %d", event.AmountCents)
	}
	if event.Currency != "RUB" {
		t.Fatalf("unexpected currency: %s", event.Currency)
	}
	if event.UserHint != "42" || event.PlanType != "pro" || event.Interval != "monthly" {
		t.Fatalf("unexpected hint/plan: %s %s %s", event.UserHint, event.PlanType, event.Interval)
	}
	if !event.Recurring {
		t.Fatal("Shp_recurring=1 must mark the event recurring")
	}
}

func TestRobokassaVerifyAndParseUppercaseSignatureAccepted(t *testing.T) {
	p := NewRobokassaProvider(RobokassaConfig{Password2: robokassaTestPassword})

	values := url.Values{}
	values.Set("OutSum", "299.00")
	values.Set("InvId", "10045")
	signature := strings.ToUpper(robokassaSign(values, robokassaTestPassword))

	if _, err := p.VerifyAndParse(robokassaForm(signature, nil), ""); err != nil {
		t.Fatalf("uppercase signature must verify, got %v", err)
	}
}

func TestRobokassaVerifyAndParseWrongSignature(t *testing.T) {
	p := NewRobokassaProvider(RobokassaConfig{Password2: robokassaTestPassword})

	values := url.Values{}
	values.Set("OutSum", "299.00")
	values.Set("InvId", "10045")
	signature := robokassaSign(values, "other_password")

	if _, err := p.VerifyAndParse(robokassaForm(signature, nil), ""); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestRobokassaVerifyAndParseTamperedAmount(t *testing.T) {
	p := NewRobokassaProvider(RobokassaConfig{Password2: robokassaTestPassword})

	values := url.Values{}
	values.Set("OutSum", "299.00")
	values.Set("InvId", "10045")
	signature := robokassaSign(values, robokassaTestPassword)

	payload := []byte("OutSum=1.00&InvId=10045&SignatureValue=" + signature)
	if _, err := p.VerifyAndParse(payload, ""); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestRobokassaVerifyAndParseMissingFields(t *testing.T) {
	p := NewRobokassaProvider(RobokassaConfig{Password2: robokassaTestPassword})

	if _, err := p.VerifyAndParse([]byte("OutSum=299.00"), ""); !errors.Is(err, ErrPayloadMalformed) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}

func TestRobokassaVerifyAndParseMissingPassword(t *testing.T) {
	p := NewRobokassaProvider(RobokassaConfig{})

	if _, err := p.VerifyAndParse([]byte("OutSum=299.00&InvId=1&SignatureValue=00"), ""); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestParseOutSumCents(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "299.00", want: 29900},
		{in: "299", want: 29900},
		{in: "0.50", want: 50},
		{in: "99.9", want: 9990},
		{in: ".99", want: 99},
		{in: "1.999", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "-5.00", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parseOutSumCents(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseOutSumCents(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseOutSumCents(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseOutSumCents(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
