package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-subscriptions/app/entity"
	"github.com/vibast-solutions/ms-go-subscriptions/app/types"
)

func SubscriptionToResponse(item *entity.Subscription) *types.SubscriptionResponse {
	if item == nil {
		return nil
	}

	return &types.SubscriptionResponse{
		ID:                  item.ID,
		UserID:              item.UserID,
		Provider:            item.Provider,
		PlanType:            item.PlanType,
		AmountCents:         item.AmountCents,
		Currency:            item.Currency,
		Interval:            item.Interval,
		Status:              item.Status,
		StartedAt:           formatTime(item.StartedAt),
		CurrentPeriodStart:  formatTime(item.CurrentPeriodStart),
		CurrentPeriodEnd:    formatTime(item.CurrentPeriodEnd),
		CancelAtPeriodEnd:   item.CancelAtPeriodEnd,
		CanceledAt:          formatTimePtr(item.CanceledAt),
		CancelReason:        derefString(item.CancelReason),
		NextPaymentDate:     formatTimePtr(item.NextPaymentDate),
		FailedPaymentsCount: item.FailedPaymentsCount,
		CreatedAt:           formatTime(item.CreatedAt),
		UpdatedAt:           formatTime(item.UpdatedAt),
	}
}

func SubscriptionsToResponse(items []*entity.Subscription) []*types.SubscriptionResponse {
	result := make([]*types.SubscriptionResponse, 0, len(items))
	for _, item := range items {
		result = append(result, SubscriptionToResponse(item))
	}
	return result
}

func PaymentToResponse(item *entity.Payment) *types.PaymentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentResponse{
		ID:                item.ID,
		Provider:          item.Provider,
		ExternalInvoiceID: item.ExternalInvoiceID,
		UserID:            item.UserID,
		SubscriptionID:    derefString(item.SubscriptionID),
		AmountCents:       item.AmountCents,
		Currency:          item.Currency,
		Description:       item.Description,
		Status:            item.Status,
		PaymentType:       item.PaymentType,
		ErrorCode:         derefString(item.ErrorCode),
		ErrorMessage:      derefString(item.ErrorMessage),
		PaidAt:            formatTimePtr(item.PaidAt),
		CreatedAt:         formatTime(item.CreatedAt),
		UpdatedAt:         formatTime(item.UpdatedAt),
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.PaymentResponse {
	result := make([]*types.PaymentResponse, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func EntitlementToResponse(userID uint64, snapshot *entity.EntitlementSnapshot) *types.EntitlementResponse {
	if snapshot == nil {
		return nil
	}

	return &types.EntitlementResponse{
		UserID:             userID,
		IsProUser:          snapshot.IsProUser,
		ProSource:          snapshot.ProSource,
		SubscriptionStatus: snapshot.SubscriptionStatus,
		ExpiresAt:          formatTimePtr(snapshot.ExpiresAt),
	}
}

func formatTime(v time.Time) string {
	return v.UTC().Format(time.RFC3339)
}

func formatTimePtr(v *time.Time) string {
	if v == nil {
		return ""
	}
	return formatTime(*v)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
