package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// ProviderNotificationRequest carries one raw provider delivery. The payload
// is kept as received so signature verification runs over the exact bytes.
type ProviderNotificationRequest struct {
	RequestID string
	Provider  string
	Signature string
	Payload   []byte
}

func NewProviderNotificationRequestFromContext(ctx echo.Context) (*ProviderNotificationRequest, error) {
	provider := strings.TrimSpace(strings.ToLower(ctx.Param("provider")))
	requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))

	signature := strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("X-Provider-Signature"))
	}

	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &ProviderNotificationRequest{
		RequestID: requestID,
		Provider:  provider,
		Signature: signature,
		Payload:   rawBody,
	}, nil
}

func (r *ProviderNotificationRequest) Validate() error {
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

type UserScopedRequest struct {
	UserID uint64
}

func NewUserScopedRequestFromContext(ctx echo.Context) (*UserScopedRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &UserScopedRequest{UserID: id}, nil
}

func (r *UserScopedRequest) Validate() error {
	if r.UserID == 0 {
		return errors.New("invalid user id")
	}
	return nil
}

type ListUserPaymentsRequest struct {
	UserID uint64
	Limit  int32
	Offset int32
}

func NewListUserPaymentsRequestFromContext(ctx echo.Context) (*ListUserPaymentsRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	req := &ListUserPaymentsRequest{UserID: id, Limit: 50, Offset: 0}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListUserPaymentsRequest) Validate() error {
	if r.UserID == 0 {
		return errors.New("invalid user id")
	}
	if r.Limit <= 0 || r.Limit > 100 {
		return errors.New("limit must be between 1 and 100")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	return nil
}
