package provider

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const RobokassaProviderName = "robokassa"

type RobokassaConfig struct {
	// Password2 signs result notifications; it is distinct from the password
	// used for the outbound payment link.
	Password2 string
}

// RobokassaProvider handles form-encoded result notifications. The signature
// is an MD5 over a fixed-order signing string OutSum:InvId:password2 followed
// by the sorted Shp_ parameters, compared case-insensitively since Robokassa
// sends uppercase hex.
type RobokassaProvider struct {
	cfg RobokassaConfig
	now func() time.Time
}

func NewRobokassaProvider(cfg RobokassaConfig) *RobokassaProvider {
	return &RobokassaProvider{cfg: cfg, now: time.Now}
}

func (p *RobokassaProvider) Name() string {
	return RobokassaProviderName
}

func (p *RobokassaProvider) VerifyAndParse(payload []byte, _ string) (*Event, error) {
	if strings.TrimSpace(p.cfg.Password2) == "" {
		return nil, fmt.Errorf("robokassa password2 is not configured: %w", ErrSignatureInvalid)
	}

	values, err := url.ParseQuery(strings.TrimSpace(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}

	outSum := strings.TrimSpace(values.Get("OutSum"))
	invID := strings.TrimSpace(values.Get("InvId"))
	signature := strings.TrimSpace(values.Get("SignatureValue"))
	if outSum == "" || invID == "" {
		return nil, fmt.Errorf("%w: OutSum and InvId are required", ErrPayloadMalformed)
	}

	if !verifyRobokassaSignature(outSum, invID, signature, p.cfg.Password2, shpParams(values)) {
		return nil, ErrSignatureInvalid
	}

	amountCents, err := parseOutSumCents(outSum)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadMalformed, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(values.Get("OutSumCurrency")))
	if currency == "" {
		currency = "RUB"
	}

	userHint := strings.TrimSpace(values.Get("Shp_user"))
	if userHint == "" {
		userHint = strings.TrimSpace(values.Get("Shp_email"))
	}

	// Robokassa only delivers result notifications for successful payments;
	// failures and cancellations never reach this endpoint.
	return &Event{
		Provider:          RobokassaProviderName,
		ProviderEventID:   invID,
		ExternalInvoiceID: invID,
		UserHint:          userHint,
		PlanType:          strings.ToLower(strings.TrimSpace(values.Get("Shp_plan"))),
		Interval:          strings.ToLower(strings.TrimSpace(values.Get("Shp_interval"))),
		AmountCents:       amountCents,
		Currency:          currency,
		Kind:              EventKindPaymentSucceeded,
		Recurring:         values.Get("Shp_recurring") == "1",
		OccurredAt:        p.now().UTC(),
		RawPayload:        string(payload),
	}, nil
}

func verifyRobokassaSignature(outSum, invID, signature, password2 string, shp []string) bool {
	if signature == "" {
		return false
	}

	base := outSum + ":" + invID + ":" + password2
	for _, pair := range shp {
		base += ":" + pair
	}

	sum := md5.Sum([]byte(base))
	expected := hex.EncodeToString(sum[:])
	candidate := strings.ToLower(signature)
	if len(candidate) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1
}

func shpParams(values url.Values) []string {
	pairs := make([]string, 0, 4)
	for key := range values {
		if strings.HasPrefix(key, "Shp_") || strings.HasPrefix(key, "shp_") {
			pairs = append(pairs, key+"="+values.Get(key))
		}
	}
	sort.Strings(pairs)
	return pairs
}

// parseOutSumCents converts a decimal amount like "99.00" into integer minor
// units without going through floating point.
func parseOutSumCents(outSum string) (int64, error) {
	whole := outSum
	frac := ""
	if idx := strings.IndexByte(outSum, '.'); idx >= 0 {
		whole = outSum[:idx]
		frac = outSum[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two decimal places", outSum)
	}
	for len(frac) < 2 {
		frac += "0"
	}

	wholeUnits, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", outSum)
	}
	fracUnits, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", outSum)
	}
	if wholeUnits < 0 {
		return 0, fmt.Errorf("negative amount %q", outSum)
	}
	return wholeUnits*100 + fracUnits, nil
}
