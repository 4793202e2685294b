//go:build !integration

package usecase_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-entitlements/internal/domain"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/usecase"
)

type activationFixture struct {
	uc        *usecase.ActivationUC
	codes     *memCodeRepo
	members   *memMembershipRepo
	purchases *memPurchaseRepo
	audit     *recordingAudit
}

func newActivationFixture() *activationFixture {
	f := &activationFixture{
		codes:     newMemCodeRepo(),
		members:   newMemMembershipRepo(),
		purchases: &memPurchaseRepo{},
		audit:     &recordingAudit{},
	}
	f.uc = usecase.NewActivationUseCase(
		f.codes, f.members, f.purchases, newTestCatalog(), &MockTxManager{}, f.audit,
		usecase.ActivationConfig{MinBatch: 1, MaxBatch: 100},
		newTestLogger(),
	)
	return f
}

func (f *activationFixture) seedCode(code string, grant model.Grant, durationDays int) {
	f.codes.put(&model.ActivationCode{
		ID:           "id-" + code,
		Code:         code,
		Grant:        grant,
		DurationDays: durationDays,
		BatchID:      "batch-seed",
		IssuedBy:     "admin-1",
		CreatedAt:    fixedNow.Add(-days(1)),
	})
}

func TestActivationUseCase_GenerateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("twenty distinct readable codes", func(t *testing.T) {
		f := newActivationFixture()
		batch, err := f.uc.GenerateBatch(ctx, usecase.GenerateRequest{
			Grant:    model.MembershipGrant(model.LevelYearly),
			Quantity: 20,
			IssuedBy: "admin-1",
		}, fixedNow)
		require.NoError(t, err)
		require.Len(t, batch.Codes, 20)
		assert.NotEmpty(t, batch.ID)

		seen := map[string]bool{}
		for _, c := range batch.Codes {
			assert.True(t, usecase.ValidCodeFormat(c.Code), c.Code)
			assert.False(t, strings.ContainsAny(c.Code, "0O1I"), c.Code)
			assert.False(t, seen[c.Code], "duplicate %s", c.Code)
			seen[c.Code] = true
			assert.Equal(t, batch.ID, c.BatchID)
			assert.Equal(t, 365, c.DurationDays)
			assert.False(t, c.Used)
			assert.Nil(t, c.CodeExpiresAt)
		}
		assert.Equal(t, 20, f.codes.len())
		assert.Equal(t, []string{model.AuditBatchGenerated}, f.audit.types())
	})

	t.Run("code expiry and duration override", func(t *testing.T) {
		f := newActivationFixture()
		batch, err := f.uc.GenerateBatch(ctx, usecase.GenerateRequest{
			Grant:         model.MembershipGrant(model.LevelMonthly),
			Quantity:      2,
			ExpiresInDays: intPtr(7),
			DurationDays:  intPtr(45),
			IssuedBy:      "admin-1",
		}, fixedNow)
		require.NoError(t, err)
		for _, c := range batch.Codes {
			require.NotNil(t, c.CodeExpiresAt)
			assert.Equal(t, fixedNow.Add(days(7)), *c.CodeExpiresAt)
			assert.Equal(t, 45, c.DurationDays)
		}
	})

	t.Run("product grant", func(t *testing.T) {
		f := newActivationFixture()
		batch, err := f.uc.GenerateBatch(ctx, usecase.GenerateRequest{
			Grant:    model.ProductGrant("course"),
			Quantity: 3,
			IssuedBy: "admin-1",
		}, fixedNow)
		require.NoError(t, err)
		for _, c := range batch.Codes {
			assert.Equal(t, model.GrantProduct, c.Grant.Kind)
			assert.Equal(t, 0, c.DurationDays)
		}
	})

	t.Run("validation", func(t *testing.T) {
		cases := []struct {
			name string
			req  usecase.GenerateRequest
			want error
		}{
			{"zero quantity", usecase.GenerateRequest{Grant: model.MembershipGrant(model.LevelMonthly), Quantity: 0, IssuedBy: "a"}, domain.ErrInvalidQuantity},
			{"quantity above max", usecase.GenerateRequest{Grant: model.MembershipGrant(model.LevelMonthly), Quantity: 101, IssuedBy: "a"}, domain.ErrInvalidQuantity},
			{"level none", usecase.GenerateRequest{Grant: model.MembershipGrant(model.LevelNone), Quantity: 1, IssuedBy: "a"}, domain.ErrInvalidLevel},
			{"unknown level", usecase.GenerateRequest{Grant: model.MembershipGrant("gold"), Quantity: 1, IssuedBy: "a"}, domain.ErrInvalidLevel},
			{"non-positive code expiry", usecase.GenerateRequest{Grant: model.MembershipGrant(model.LevelMonthly), Quantity: 1, ExpiresInDays: intPtr(0), IssuedBy: "a"}, domain.ErrInvalidExpiry},
			{"code expiry beyond bound", usecase.GenerateRequest{Grant: model.MembershipGrant(model.LevelMonthly), Quantity: 1, ExpiresInDays: intPtr(model.MaxGrantDays + 1), IssuedBy: "a"}, domain.ErrInvalidExpiry},
			{"code expiry that overflows", usecase.GenerateRequest{Grant: model.MembershipGrant(model.LevelMonthly), Quantity: 1, ExpiresInDays: intPtr(200000), IssuedBy: "a"}, domain.ErrInvalidExpiry},
			{"duration beyond bound", usecase.GenerateRequest{Grant: model.MembershipGrant(model.LevelYearly), Quantity: 1, DurationDays: intPtr(model.MaxGrantDays + 1), IssuedBy: "a"}, domain.ErrInvalidArgument},
			{"product duration that overflows", usecase.GenerateRequest{Grant: model.ProductGrant("course"), Quantity: 1, DurationDays: intPtr(200000), IssuedBy: "a"}, domain.ErrInvalidArgument},
			{"lifetime with duration", usecase.GenerateRequest{Grant: model.MembershipGrant(model.LevelLifetime), Quantity: 1, DurationDays: intPtr(30), IssuedBy: "a"}, domain.ErrInvalidArgument},
			{"membership-only product", usecase.GenerateRequest{Grant: model.ProductGrant("screener"), Quantity: 1, IssuedBy: "a"}, domain.ErrInvalidGrant},
			{"unknown product", usecase.GenerateRequest{Grant: model.ProductGrant("nope"), Quantity: 1, IssuedBy: "a"}, domain.ErrProductNotFound},
			{"missing issuer", usecase.GenerateRequest{Grant: model.MembershipGrant(model.LevelMonthly), Quantity: 1}, domain.ErrInvalidArgument},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := newActivationFixture()
				_, err := f.uc.GenerateBatch(ctx, tc.req, fixedNow)
				require.ErrorIs(t, err, tc.want)
				assert.Equal(t, 0, f.codes.len())
			})
		}
	})

	t.Run("largest allowed day counts stay in the future", func(t *testing.T) {
		f := newActivationFixture()
		batch, err := f.uc.GenerateBatch(ctx, usecase.GenerateRequest{
			Grant:         model.MembershipGrant(model.LevelYearly),
			Quantity:      1,
			ExpiresInDays: intPtr(model.MaxGrantDays),
			DurationDays:  intPtr(model.MaxGrantDays),
			IssuedBy:      "admin-1",
		}, fixedNow)
		require.NoError(t, err)
		c := batch.Codes[0]
		require.NotNil(t, c.CodeExpiresAt)
		assert.Equal(t, fixedNow.AddDate(0, 0, model.MaxGrantDays), *c.CodeExpiresAt)
		assert.False(t, c.Expired(fixedNow))

		res, err := f.uc.Redeem(ctx, c.Code, "user-1", fixedNow)
		require.NoError(t, err)
		assert.True(t, res.ExpiresAt.After(fixedNow))
	})

	t.Run("forced collisions exhaust the batch", func(t *testing.T) {
		f := newActivationFixture()
		f.uc.SetCodeGenerator(func() (string, error) { return "AAAA-BBBB-CCCC-DDDD", nil })
		_, err := f.uc.GenerateBatch(ctx, usecase.GenerateRequest{
			Grant:    model.MembershipGrant(model.LevelMonthly),
			Quantity: 3,
			IssuedBy: "admin-1",
		}, fixedNow)
		require.ErrorIs(t, err, domain.ErrBatchExhausted)
		assert.Equal(t, 0, f.codes.len(), "nothing persisted")
	})

	t.Run("candidates already stored are skipped", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode("AAAA-BBBB-CCCC-DDDD", model.MembershipGrant(model.LevelMonthly), 30)
		f.uc.SetCodeGenerator(func() (string, error) { return "AAAA-BBBB-CCCC-DDDD", nil })

		_, err := f.uc.GenerateBatch(ctx, usecase.GenerateRequest{
			Grant:    model.MembershipGrant(model.LevelMonthly),
			Quantity: 1,
			IssuedBy: "admin-1",
		}, fixedNow)
		require.ErrorIs(t, err, domain.ErrBatchExhausted)
		assert.Equal(t, 1, f.codes.len())
	})

	t.Run("collision on insert discards the batch", func(t *testing.T) {
		f := newActivationFixture()
		f.codes.SaveBatchFunc = func(context.Context, []*model.ActivationCode) error { return domain.ErrAlreadyExists }
		_, err := f.uc.GenerateBatch(ctx, usecase.GenerateRequest{
			Grant:    model.MembershipGrant(model.LevelMonthly),
			Quantity: 5,
			IssuedBy: "admin-1",
		}, fixedNow)
		require.ErrorIs(t, err, domain.ErrBatchExhausted)
		assert.Equal(t, 0, f.codes.len())
		assert.Empty(t, f.audit.types())
	})
}

func TestActivationUseCase_Redeem(t *testing.T) {
	ctx := context.Background()
	const code = "ABCD-EFGH-JKLM-NPQR"

	t.Run("fresh user gets the level", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelMonthly), 30)

		res, err := f.uc.Redeem(ctx, code, "user-1", fixedNow)
		require.NoError(t, err)
		assert.Equal(t, model.LevelMonthly, res.Level)
		assert.Equal(t, "Monthly Member", res.Name)
		assert.Equal(t, 30, res.DaysAdded)
		require.NotNil(t, res.ExpiresAt)
		assert.Equal(t, fixedNow.Add(days(30)), *res.ExpiresAt)

		stored := f.codes.get(code)
		assert.True(t, stored.Used)
		assert.Equal(t, "user-1", *stored.UsedBy)
		assert.Equal(t, []string{model.AuditCodeRedeemed}, f.audit.types())
	})

	t.Run("input is normalized", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelMonthly), 30)
		_, err := f.uc.Redeem(ctx, " abcd efgh jklm npqr ", "user-1", fixedNow)
		require.NoError(t, err)
	})

	t.Run("same level extends from current expiry", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelMonthly), 30)
		current := fixedNow.Add(days(10))
		f.members.put(&model.Membership{UserID: "user-1", Level: model.LevelMonthly, ExpiresAt: &current, ActivatedAt: timePtr(fixedNow.Add(-days(20)))})

		res, err := f.uc.Redeem(ctx, code, "user-1", fixedNow)
		require.NoError(t, err)
		assert.Equal(t, current.Add(days(30)), *res.ExpiresAt)
	})

	t.Run("upgrade never shortens the current expiry", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelQuarterly), 10)
		current := fixedNow.Add(days(25))
		f.members.put(&model.Membership{UserID: "user-1", Level: model.LevelMonthly, ExpiresAt: &current})

		res, err := f.uc.Redeem(ctx, code, "user-1", fixedNow)
		require.NoError(t, err)
		assert.Equal(t, model.LevelQuarterly, res.Level)
		assert.Equal(t, current, *res.ExpiresAt)
	})

	t.Run("downgrade refused and code stays unused", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelMonthly), 30)
		f.members.put(&model.Membership{UserID: "user-1", Level: model.LevelYearly, ExpiresAt: timePtr(fixedNow.Add(days(100)))})

		_, err := f.uc.Redeem(ctx, code, "user-1", fixedNow)
		require.ErrorIs(t, err, domain.ErrDowngrade)
		assert.False(t, f.codes.get(code).Used)
	})

	t.Run("expired membership counts as none", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelMonthly), 30)
		f.members.put(&model.Membership{UserID: "user-1", Level: model.LevelYearly, ExpiresAt: timePtr(fixedNow.Add(-days(1)))})

		res, err := f.uc.Redeem(ctx, code, "user-1", fixedNow)
		require.NoError(t, err)
		assert.Equal(t, model.LevelMonthly, res.Level)
		assert.Equal(t, fixedNow.Add(days(30)), *res.ExpiresAt)
	})

	t.Run("lifetime clears expiry", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelLifetime), 0)
		f.members.put(&model.Membership{UserID: "user-1", Level: model.LevelMonthly, ExpiresAt: timePtr(fixedNow.Add(days(3)))})

		res, err := f.uc.Redeem(ctx, code, "user-1", fixedNow)
		require.NoError(t, err)
		assert.Equal(t, model.LevelLifetime, res.Level)
		assert.Nil(t, res.ExpiresAt)
	})

	t.Run("lifetime member has nothing to gain", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelYearly), 365)
		f.members.put(&model.Membership{UserID: "user-1", Level: model.LevelLifetime})

		_, err := f.uc.Redeem(ctx, code, "user-1", fixedNow)
		require.ErrorIs(t, err, domain.ErrNothingToGrant)
	})

	t.Run("stored code with an out-of-range duration is refused", func(t *testing.T) {
		for _, grant := range []model.Grant{model.MembershipGrant(model.LevelYearly), model.ProductGrant("reports")} {
			f := newActivationFixture()
			f.seedCode(code, grant, 200000)

			_, err := f.uc.Redeem(ctx, code, "user-1", fixedNow)
			require.ErrorIs(t, err, domain.ErrInvalidArgument, grant.Kind)
			assert.False(t, f.codes.get(code).Used)
			list, _ := f.purchases.ListByUser(ctx, nil, "user-1")
			assert.Empty(t, list)
		}
	})

	t.Run("product grant records a purchase", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.ProductGrant("reports"), 90)

		res, err := f.uc.Redeem(ctx, code, "user-1", fixedNow)
		require.NoError(t, err)
		assert.Equal(t, "Research Reports", res.Name)

		list, err := f.purchases.ListByUser(ctx, nil, "user-1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, model.PurchaseTypeActivationCode, list[0].PurchaseType)
		assert.Equal(t, fixedNow.Add(days(90)), *list[0].ExpiresAt)
	})

	t.Run("refusals", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelMonthly), 30)
		expired := "WXYZ-WXYZ-WXYZ-WXYZ"
		f.codes.put(&model.ActivationCode{
			Code: expired, Grant: model.MembershipGrant(model.LevelMonthly), DurationDays: 30,
			CodeExpiresAt: timePtr(fixedNow.Add(-1)),
		})

		_, err := f.uc.Redeem(ctx, "ZZZZ-ZZZZ-ZZZZ-ZZZZ", "user-1", fixedNow)
		assert.ErrorIs(t, err, domain.ErrCodeNotFound)

		_, err = f.uc.Redeem(ctx, "", "user-1", fixedNow)
		assert.ErrorIs(t, err, domain.ErrCodeNotFound)

		_, err = f.uc.Redeem(ctx, expired, "user-1", fixedNow)
		assert.ErrorIs(t, err, domain.ErrCodeExpired)

		_, err = f.uc.Redeem(ctx, code, "user-1", fixedNow)
		require.NoError(t, err)
		_, err = f.uc.Redeem(ctx, code, "user-2", fixedNow)
		assert.ErrorIs(t, err, domain.ErrCodeAlreadyUsed)
	})

	t.Run("concurrent redeemers: exactly one wins", func(t *testing.T) {
		f := newActivationFixture()
		f.seedCode(code, model.MembershipGrant(model.LevelMonthly), 30)

		const n = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			conflicts int
		)
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, err := f.uc.Redeem(ctx, code, "user-"+string(rune('a'+i)), fixedNow)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case assert.ErrorIs(t, err, domain.ErrCodeAlreadyUsed):
					conflicts++
				}
			}(i)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, 1, ok)
		assert.Equal(t, n-1, conflicts)
		counts, err := f.members.CountActiveByLevel(ctx, nil, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[model.LevelMonthly])
	})
}

func TestActivationUseCase_ListBatch(t *testing.T) {
	ctx := context.Background()
	f := newActivationFixture()

	batch, err := f.uc.GenerateBatch(ctx, usecase.GenerateRequest{
		Grant:    model.MembershipGrant(model.LevelQuarterly),
		Quantity: 4,
		IssuedBy: "admin-1",
	}, fixedNow)
	require.NoError(t, err)

	codes, err := f.uc.ListBatch(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, codes, 4)

	_, err = f.uc.ListBatch(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)

	_, err = f.uc.ListBatch(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "ABCD-EFGH-JKLM-NPQR", usecase.NormalizeCode("abcdefghjklmnpqr"))
	assert.Equal(t, "ABCD-EFGH-JKLM-NPQR", usecase.NormalizeCode("ABCD-EFGH-JKLM-NPQR"))
	assert.Equal(t, "ABC", usecase.NormalizeCode("a-b c"))
	assert.False(t, usecase.ValidCodeFormat("ABCD-EFGH-JKLM-NPQ0"))
	assert.False(t, usecase.ValidCodeFormat("ABCDEFGHJKLMNPQR"))
}
