//go:build !integration

package api_test

import (
	"context"
	"time"

	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/usecase"
)

type mockActivationUC struct {
	GenerateBatchFunc func(ctx context.Context, req usecase.GenerateRequest, now time.Time) (*model.Batch, error)
	RedeemFunc        func(ctx context.Context, code, userID string, now time.Time) (*model.Redemption, error)
	ListBatchFunc     func(ctx context.Context, batchID string) ([]*model.ActivationCode, error)
}

func (m *mockActivationUC) GenerateBatch(ctx context.Context, req usecase.GenerateRequest, now time.Time) (*model.Batch, error) {
	return m.GenerateBatchFunc(ctx, req, now)
}
func (m *mockActivationUC) Redeem(ctx context.Context, code, userID string, now time.Time) (*model.Redemption, error) {
	return m.RedeemFunc(ctx, code, userID, now)
}
func (m *mockActivationUC) ListBatch(ctx context.Context, batchID string) ([]*model.ActivationCode, error) {
	return m.ListBatchFunc(ctx, batchID)
}

type mockAccessUC struct {
	ResolveFunc       func(ctx context.Context, userID, slug string, now time.Time) (*model.Decision, error)
	ListPurchasesFunc func(ctx context.Context, userID string) ([]*model.ProductPurchase, error)
}

func (m *mockAccessUC) Resolve(ctx context.Context, userID, slug string, now time.Time) (*model.Decision, error) {
	return m.ResolveFunc(ctx, userID, slug, now)
}

func (m *mockAccessUC) ListPurchases(ctx context.Context, userID string) ([]*model.ProductPurchase, error) {
	return m.ListPurchasesFunc(ctx, userID)
}

type mockTrialUC struct {
	ConsumeFunc func(ctx context.Context, userID, slug string, now time.Time, ip string) (int, error)
	StatusFunc  func(ctx context.Context, userID, slug string, now time.Time) (*model.TrialStatus, error)
	ResetFunc   func(ctx context.Context, adminID, userID, slug string, now time.Time) error
}

func (m *mockTrialUC) Consume(ctx context.Context, userID, slug string, now time.Time, ip string) (int, error) {
	return m.ConsumeFunc(ctx, userID, slug, now, ip)
}
func (m *mockTrialUC) Status(ctx context.Context, userID, slug string, now time.Time) (*model.TrialStatus, error) {
	return m.StatusFunc(ctx, userID, slug, now)
}
func (m *mockTrialUC) Reset(ctx context.Context, adminID, userID, slug string, now time.Time) error {
	return m.ResetFunc(ctx, adminID, userID, slug, now)
}

type mockMemberUC struct {
	GetFunc                func(ctx context.Context, userID string) (*model.Membership, error)
	AdjustFunc             func(ctx context.Context, req usecase.AdjustRequest, now time.Time) (*usecase.AdjustResult, error)
	CountActiveByLevelFunc func(ctx context.Context, now time.Time) (map[model.Level]int, error)
}

func (m *mockMemberUC) Get(ctx context.Context, userID string) (*model.Membership, error) {
	return m.GetFunc(ctx, userID)
}
func (m *mockMemberUC) Adjust(ctx context.Context, req usecase.AdjustRequest, now time.Time) (*usecase.AdjustResult, error) {
	return m.AdjustFunc(ctx, req, now)
}
func (m *mockMemberUC) CountActiveByLevel(ctx context.Context, now time.Time) (map[model.Level]int, error) {
	return m.CountActiveByLevelFunc(ctx, now)
}
