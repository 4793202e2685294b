package adapter

import (
	"context"

	"product-entitlements/internal/domain/model"
)

// AuditSink records audit events. Append never blocks the caller and never
// reports failure; sinks log their own errors.
type AuditSink interface {
	Append(ctx context.Context, ev model.AuditEvent)
}
