package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-subscriptions/app/factory"
	"github.com/vibast-solutions/ms-go-subscriptions/app/mapper"
	"github.com/vibast-solutions/ms-go-subscriptions/app/provider"
	"github.com/vibast-solutions/ms-go-subscriptions/app/service"
	"github.com/vibast-solutions/ms-go-subscriptions/app/types"
)

type SubscriptionController struct {
	subscriptionService *service.SubscriptionService
	logger              logrus.FieldLogger
}

func NewSubscriptionController(subscriptionService *service.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{
		subscriptionService: subscriptionService,
		logger:              factory.NewModuleLogger("subscriptions-controller"),
	}
}

// requestLogger carries the inbound request id so every log line from one
// delivery can be correlated.
func (c *SubscriptionController) requestLogger(ctx echo.Context) logrus.FieldLogger {
	return factory.LoggerWithContext(c.logger, ctx)
}

func (c *SubscriptionController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

// HandleProviderNotification is the webhook endpoint. Status codes are part
// of the retry contract with providers: 200 means stop redelivering, 401 is a
// rejected signature, 400 is an unfixable payload, 500 asks for a retry.
func (c *SubscriptionController) HandleProviderNotification(ctx echo.Context) error {
	req, err := types.NewProviderNotificationRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.subscriptionService.HandleNotification(ctx.Request().Context(), req.Provider, req.Payload, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrSignatureInvalid):
			return c.writeError(ctx, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, provider.ErrPayloadMalformed),
			errors.Is(err, service.ErrPolicyViolation),
			errors.Is(err, service.ErrProviderUnsupported),
			errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			c.requestLogger(ctx).WithError(err).Error("Handle provider notification failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.NotificationResponse{Status: result.Outcome})
}

func (c *SubscriptionController) GetEntitlement(ctx echo.Context) error {
	req, err := types.NewUserScopedRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	snapshot, err := c.subscriptionService.GetEntitlement(ctx.Request().Context(), req.UserID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		c.requestLogger(ctx).WithError(err).Error("Get entitlement failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.EntitlementToResponse(req.UserID, snapshot))
}

func (c *SubscriptionController) ListSubscriptions(ctx echo.Context) error {
	req, err := types.NewUserScopedRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.subscriptionService.ListSubscriptions(ctx.Request().Context(), req.UserID)
	if err != nil {
		c.requestLogger(ctx).WithError(err).Error("List subscriptions failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListSubscriptionsResponse{Subscriptions: mapper.SubscriptionsToResponse(items)})
}

func (c *SubscriptionController) ListPayments(ctx echo.Context) error {
	req, err := types.NewListUserPaymentsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.subscriptionService.ListPayments(ctx.Request().Context(), req.UserID, req.Limit, req.Offset)
	if err != nil {
		c.requestLogger(ctx).WithError(err).Error("List payments failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{Payments: mapper.PaymentsToResponse(items)})
}

func (c *SubscriptionController) InvalidateCache(ctx echo.Context) error {
	req, err := types.NewUserScopedRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	if err := c.subscriptionService.InvalidateUserCache(ctx.Request().Context(), req.UserID); err != nil {
		c.requestLogger(ctx).WithError(err).Error("Cache invalidation failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Cache invalidated"})
}

func (c *SubscriptionController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
