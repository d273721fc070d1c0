package utils

import (
	"context"

	"github.com/mmdatafocus/reviews_backend/appctx"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyAccountId     = appctx.ContextKeyAccountId
	ContextKeyIntegrationId = appctx.ContextKeyIntegrationId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId

	ContextKeySkipAccountScope = appctx.ContextKeySkipAccountScope
)

func GetAccountIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyAccountId)
}

func GetIntegrationIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyIntegrationId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetAccountIdInContext(ctx context.Context, accountId string) context.Context {
	return appctx.Set(ctx, ContextKeyAccountId, accountId)
}

func SetIntegrationIdInContext(ctx context.Context, integrationId int) context.Context {
	return appctx.Set(ctx, ContextKeyIntegrationId, integrationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}
