package flowrule

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInstaller records installs and can be told to reject them.
type fakeInstaller struct {
	mu       sync.Mutex
	installs []Rule
	failNext int
}

func (f *fakeInstaller) InstallRule(_ context.Context, r Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return fmt.Errorf("switch rejected rule")
	}
	f.installs = append(f.installs, r)
	return nil
}

func (f *fakeInstaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.installs)
}

func (f *fakeInstaller) last() Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installs[len(f.installs)-1]
}

func TestManager_InstallIdempotent(t *testing.T) {
	inst := &fakeInstaller{}
	m := NewManager(inst, nil)

	r := testRule(1, "10.2.1.10", 150, 3)

	require.NoError(t, m.Install(context.Background(), r, "QOS"))
	require.NoError(t, m.Install(context.Background(), r, "QOS"))
	require.NoError(t, m.Install(context.Background(), r, "QOS"))

	// Identical tuple reaches the switch once.
	assert.Equal(t, 1, inst.count())
	assert.Len(t, m.Rules(), 1)
}

func TestManager_InstallReplacesAction(t *testing.T) {
	inst := &fakeInstaller{}
	m := NewManager(inst, nil)

	r := testRule(1, "10.2.1.10", 150, 3)
	require.NoError(t, m.Install(context.Background(), r, "QOS"))

	// Same key, new egress: this is a replace, not a duplicate.
	r.OutputPort = 4
	require.NoError(t, m.Install(context.Background(), r, "FAILOVER"))

	assert.Equal(t, 2, inst.count())
	rules := m.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, uint32(4), rules[0].OutputPort)
}

func TestManager_FailedInstallGoesPending(t *testing.T) {
	inst := &fakeInstaller{failNext: 1}
	m := NewManager(inst, nil)

	r := testRule(1, "10.2.1.10", 150, 3)

	err := m.Install(context.Background(), r, "QOS")
	assert.Error(t, err)
	assert.Equal(t, 1, m.PendingCount())
	assert.Empty(t, m.Rules())

	// Next retry succeeds and drains the pending queue.
	m.RetryPending(context.Background())
	assert.Equal(t, 0, m.PendingCount())
	assert.Len(t, m.Rules(), 1)
}

func TestManager_RetryKeepsFailingRulePending(t *testing.T) {
	inst := &fakeInstaller{failNext: 3}
	m := NewManager(inst, nil)

	r := testRule(1, "10.2.1.10", 150, 3)
	_ = m.Install(context.Background(), r, "QOS")

	m.RetryPending(context.Background())
	assert.Equal(t, 1, m.PendingCount())

	m.RetryPending(context.Background())
	m.RetryPending(context.Background())
	assert.Equal(t, 0, m.PendingCount())
}

func TestManager_RepointEgress(t *testing.T) {
	inst := &fakeInstaller{}
	m := NewManager(inst, nil)
	ctx := context.Background()

	// Three rules on switch 1 via port 3, one already on port 5, one
	// on another switch.
	rules := []Rule{
		testRule(1, "10.2.1.10", 200, 3),
		testRule(1, "10.3.1.10", 150, 3),
		testRule(1, "10.4.1.10", 1, 3),
		testRule(1, "10.5.1.10", 100, 5),
		testRule(2, "10.2.1.10", 150, 3),
	}
	for _, r := range rules {
		require.NoError(t, m.Install(ctx, r, "QOS"))
	}

	n := m.RepointEgress(ctx, 1, 3, 4)
	assert.Equal(t, 3, n)

	byDst := map[string]Rule{}
	for _, r := range m.Rules() {
		if r.SwitchID == 1 {
			byDst[r.Match.DstAddr] = r
		}
	}

	// Repointed rules keep their priorities.
	assert.Equal(t, uint32(4), byDst["10.2.1.10"].OutputPort)
	assert.Equal(t, uint16(200), byDst["10.2.1.10"].Priority)
	assert.Equal(t, uint32(4), byDst["10.3.1.10"].OutputPort)
	assert.Equal(t, uint16(150), byDst["10.3.1.10"].Priority)
	assert.Equal(t, uint32(4), byDst["10.4.1.10"].OutputPort)

	// Rules not using the failed egress are untouched.
	assert.Equal(t, uint32(5), byDst["10.5.1.10"].OutputPort)
	for _, r := range m.Rules() {
		if r.SwitchID == 2 {
			assert.Equal(t, uint32(3), r.OutputPort)
		}
	}
}

func TestManager_RepointIncludesPending(t *testing.T) {
	inst := &fakeInstaller{failNext: 1}
	m := NewManager(inst, nil)
	ctx := context.Background()

	r := testRule(1, "10.2.1.10", 150, 3)
	_ = m.Install(ctx, r, "QOS")
	require.Equal(t, 1, m.PendingCount())

	n := m.RepointEgress(ctx, 1, 3, 4)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, m.PendingCount())
	assert.Equal(t, uint32(4), inst.last().OutputPort)
}

func TestManager_PersistAndReload(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rules.db")
	ctx := context.Background()

	storage, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)

	inst := &fakeInstaller{}
	m := NewManagerWithStorage(inst, nil, storage)
	require.NoError(t, m.Install(ctx, testRule(1, "10.2.1.10", 150, 3), "QOS"))
	require.NoError(t, m.Install(ctx, testRule(1, "10.3.1.10", 200, 3), "QOS"))
	require.NoError(t, storage.Close())

	// Restart: rules come back pending and reinstall on retry.
	storage2, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer storage2.Close()

	inst2 := &fakeInstaller{}
	m2 := NewManagerWithStorage(inst2, nil, storage2)
	require.NoError(t, m2.LoadPersisted())
	assert.Equal(t, 2, m2.PendingCount())

	m2.RetryPending(ctx)
	assert.Equal(t, 0, m2.PendingCount())
	assert.Len(t, m2.Rules(), 2)
	assert.Equal(t, 2, inst2.count())
}

func TestManager_ConcurrentInstalls(t *testing.T) {
	inst := &fakeInstaller{}
	m := NewManager(inst, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := testRule(1, fmt.Sprintf("10.2.1.%d", i), 150, 3)
			_ = m.Install(context.Background(), r, "QOS")
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.Rules(), 20)
}
