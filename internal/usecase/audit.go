package usecase

import (
	"context"

	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/domain/ports/adapter"
)

type nopAuditSink struct{}

func (nopAuditSink) Append(context.Context, model.AuditEvent) {}

func auditOrNop(s adapter.AuditSink) adapter.AuditSink {
	if s == nil {
		return nopAuditSink{}
	}
	return s
}
