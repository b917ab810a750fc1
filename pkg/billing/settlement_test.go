package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buxiuxian/summer-project/pkg/config"
)

type fakeCreditClient struct {
	checkOK      bool
	checkMessage string
	checkErr     error

	updateOK      bool
	updateMessage string
	updateBalance *int
	updateErr     error

	lastDelta int
}

func (f *fakeCreditClient) CheckCredits(ctx context.Context, token string, n int) (bool, string, *int, error) {
	return f.checkOK, f.checkMessage, nil, f.checkErr
}

func (f *fakeCreditClient) UpdateCredits(ctx context.Context, token string, delta int) (bool, string, *int, error) {
	f.lastDelta = delta
	return f.updateOK, f.updateMessage, f.updateBalance, f.updateErr
}

func testDefaults() *config.Defaults {
	return &config.Defaults{LLMFactor: 2, JobFactor: 10}
}

func TestManager_RecordAndSnapshot(t *testing.T) {
	m := NewManager()
	m.RecordLLMCall("s1")
	m.RecordLLMCall("s1")
	m.RecordRemoteJob("s1", "job-a")

	snap := m.Snapshot("s1")
	assert.Equal(t, 2, snap.LLMCalls)
	assert.Equal(t, 1, snap.RemoteJobs)
	require.Len(t, snap.Details, 3)
}

func TestManager_Snapshot_UnknownSessionIsZeroValue(t *testing.T) {
	m := NewManager()
	snap := m.Snapshot("never-seen")
	assert.Equal(t, 0, snap.LLMCalls)
	assert.Equal(t, 0, snap.RemoteJobs)
}

func TestManager_ClearRemovesCounter(t *testing.T) {
	m := NewManager()
	m.RecordLLMCall("s1")
	m.Clear("s1")
	assert.Equal(t, 0, m.Snapshot("s1").LLMCalls)
}

func TestSettle_LocalModeNeverCallsCredit(t *testing.T) {
	m := NewManager()
	m.RecordLLMCall("s1")
	client := &fakeCreditClient{}

	info := Settle(context.Background(), m, client, config.ModeLocal, testDefaults(), "s1", "tok")

	assert.True(t, info.LocalMode)
	assert.True(t, info.Success)
	assert.Equal(t, 0, info.Deducted)
	assert.Equal(t, 0, client.lastDelta, "local mode must never call UpdateCredits")
}

func TestSettle_ProductionZeroCostSkipsCreditCall(t *testing.T) {
	m := NewManager() // no recorded events: cost is 0
	client := &fakeCreditClient{}

	info := Settle(context.Background(), m, client, config.ModeProduction, testDefaults(), "s1", "tok")

	assert.True(t, info.Success)
	assert.Equal(t, 0, info.Deducted)
	assert.Equal(t, 0, client.lastDelta)
}

func TestSettle_ProductionDeductsComputedCost(t *testing.T) {
	m := NewManager()
	m.RecordLLMCall("s1")
	m.RecordRemoteJob("s1", "job-a")
	balance := 90
	client := &fakeCreditClient{updateOK: true, updateBalance: &balance}

	info := Settle(context.Background(), m, client, config.ModeProduction, testDefaults(), "s1", "tok")

	assert.Equal(t, 12, info.Deducted) // 1*2 + 1*10
	assert.Equal(t, -12, client.lastDelta)
	assert.True(t, info.Success)
	assert.Equal(t, 90, info.Remaining)
}

func TestSettle_ClearsCounterEvenOnFailure(t *testing.T) {
	m := NewManager()
	m.RecordLLMCall("s1")
	client := &fakeCreditClient{updateErr: errors.New("credit service down")}

	info := Settle(context.Background(), m, client, config.ModeProduction, testDefaults(), "s1", "tok")

	assert.False(t, info.Success)
	assert.Equal(t, 0, m.Snapshot("s1").LLMCalls, "counter must be cleared regardless of settlement outcome")
}

func TestPreflight_LocalModeAlwaysPasses(t *testing.T) {
	client := &fakeCreditClient{checkOK: false}
	ok, _, err := Preflight(context.Background(), client, config.ModeLocal, "tok")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPreflight_ProductionDelegatesToCheckCredits(t *testing.T) {
	client := &fakeCreditClient{checkOK: false, checkMessage: "insufficient balance"}
	ok, message, err := Preflight(context.Background(), client, config.ModeProduction, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "insufficient balance", message)
}
