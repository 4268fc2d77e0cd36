package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookup_engine/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestAccounts_UpsertAndRunState(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	acc, err := st.UpsertAccount(ctx, model.Account{
		Label:  "工作号 1",
		MSISDN: "+8613800000001",
		Token:  "tok-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, acc.ID)
	assert.Equal(t, model.AccountActive, acc.Status)

	// 同一 msisdn 再次提交是更新而不是新增
	again, err := st.UpsertAccount(ctx, model.Account{
		MSISDN: "+8613800000001",
		Token:  "tok-2",
	})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, again.ID)
	assert.Equal(t, "tok-2", again.Token)

	list, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	acc.Status = model.AccountCooling
	acc.ChecksPerformed = 17
	acc.CooldownUntilMs = 12345
	require.NoError(t, st.SaveAccountRunState(ctx, acc))

	got, err := st.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AccountCooling, got.Status)
	assert.Equal(t, 17, got.ChecksPerformed)
	assert.Equal(t, int64(12345), got.CooldownUntilMs)

	err = st.SaveAccountRunState(ctx, model.Account{ID: "missing"})
	assert.Error(t, err, "不存在的账号报错而不是静默丢失")

	require.NoError(t, st.DeleteAccount(ctx, acc.ID))
	list, err = st.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAccounts_UpsertWithoutStatusKeepsStoredStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	acc, err := st.UpsertAccount(ctx, model.Account{MSISDN: "+8613800000002", Token: "tok-1"})
	require.NoError(t, err)

	acc.Status = model.AccountBanned
	require.NoError(t, st.SaveAccountRunState(ctx, acc))

	// 只换 token 的重复提交不能把封禁号复活
	got, err := st.UpsertAccount(ctx, model.Account{MSISDN: "+8613800000002", Token: "tok-2"})
	require.NoError(t, err)
	assert.Equal(t, model.AccountBanned, got.Status)
	assert.Equal(t, "tok-2", got.Token)

	// 显式给状态才覆盖
	got, err = st.UpsertAccount(ctx, model.Account{
		MSISDN: "+8613800000002",
		Token:  "tok-2",
		Status: model.AccountActive,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AccountActive, got.Status)
}

func TestIdentifiers_EnqueueIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	n, err := st.EnqueueIdentifiers(ctx, []string{"+8613800001001", "+8613800001002"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = st.EnqueueIdentifiers(ctx, []string{"+8613800001002", "+8613800001003"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "重复标识不再入队")

	pending, err := st.ListPendingIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"+8613800001001", "+8613800001002", "+8613800001003"}, pending)
}

func TestIdentifiers_PendingExcludesResolved(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.EnqueueIdentifiers(ctx, []string{"+8613800002001", "+8613800002002"})
	require.NoError(t, err)

	require.NoError(t, st.InsertResult(ctx, model.VerificationResult{
		Identifier: "+8613800002001",
		Outcome:    model.ResultNotFound,
		Attempts:   1,
		AtMs:       1000,
	}))

	pending, err := st.ListPendingIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"+8613800002002"}, pending)

	count, err := st.CountPendingIdentifiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResults_RoundTripWithProfile(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertResult(ctx, model.VerificationResult{
		Identifier: "+8613800003001",
		Outcome:    model.ResultFound,
		Profile:    &model.Profile{DisplayName: "张三", HasAvatar: true, LastSeenMs: 42},
		AccountID:  "a1",
		Attempts:   2,
		AtMs:       2000,
	}))
	require.NoError(t, st.InsertResult(ctx, model.VerificationResult{
		Identifier: "+8613800003002",
		Outcome:    model.ResultExhausted,
		Error:      "connection reset",
		Attempts:   3,
		AtMs:       3000,
	}))

	out, err := st.ListResults(ctx, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// 按时间倒序
	assert.Equal(t, "+8613800003002", out[0].Identifier)
	assert.Equal(t, model.ResultExhausted, out[0].Outcome)
	assert.Equal(t, "connection reset", out[0].Error)
	assert.Nil(t, out[0].Profile)

	require.NotNil(t, out[1].Profile)
	assert.Equal(t, "张三", out[1].Profile.DisplayName)
	assert.True(t, out[1].Profile.HasAvatar)
	assert.Equal(t, int64(42), out[1].Profile.LastSeenMs)
}

func TestResults_RejectsEmptyIdentifier(t *testing.T) {
	st := newTestStore(t)
	err := st.InsertResult(context.Background(), model.VerificationResult{Outcome: model.ResultFound})
	assert.Error(t, err)
}

func TestSettings_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, ok, err := st.GetLimitsSettings(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "未设置时返回 ok=false")

	saved, err := st.UpsertLimitsSettings(ctx, model.LimitsSettings{
		MinDelaySeconds:     30,
		GlobalRatePerMinute: 20,
		RotationThreshold:   100,
		MaxAttempts:         4,
	})
	require.NoError(t, err)

	got, ok, err := st.GetLimitsSettings(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, saved, got)

	email, err := st.UpsertEmailSettings(ctx, model.EmailSettings{
		Enabled:  true,
		Email:    "ops@example.com",
		AuthCode: "secret",
	})
	require.NoError(t, err)

	gotEmail, ok, err := st.GetEmailSettings(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, email, gotEmail)
}
