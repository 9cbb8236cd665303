package flowrule

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "rules.db")
}

func testRule(switchID uint64, dst string, prio uint16, out uint32) Rule {
	return Rule{
		SwitchID:   switchID,
		Match:      Match{SrcAddr: "10.1.1.10", DstAddr: dst},
		Priority:   prio,
		OutputPort: out,
	}
}

// TestSQLiteStorage_NewAndClose tests creating and closing storage
func TestSQLiteStorage_NewAndClose(t *testing.T) {
	storage, err := NewSQLiteStorage(testDBPath(t))
	require.NoError(t, err)
	assert.NotNil(t, storage)

	err = storage.Close()
	assert.NoError(t, err)
}

// TestSQLiteStorage_SaveAndLoad tests saving and loading rules
func TestSQLiteStorage_SaveAndLoad(t *testing.T) {
	storage, err := NewSQLiteStorage(testDBPath(t))
	require.NoError(t, err)
	defer storage.Close()

	rule := testRule(1, "10.2.1.10", 150, 3)
	rule.Match.Marking = 184

	err = storage.SaveRule(&rule)
	assert.NoError(t, err)

	rules, err := storage.LoadRules()
	assert.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule, rules[0])
}

// TestSQLiteStorage_SaveMultipleRules tests priority ordering on load
func TestSQLiteStorage_SaveMultipleRules(t *testing.T) {
	storage, err := NewSQLiteStorage(testDBPath(t))
	require.NoError(t, err)
	defer storage.Close()

	rules := []Rule{
		testRule(1, "10.2.1.10", 1, 3),
		testRule(1, "10.3.1.10", 200, 3),
		testRule(2, "10.4.1.10", 150, 4),
	}

	for i := range rules {
		require.NoError(t, storage.SaveRule(&rules[i]))
	}

	loaded, err := storage.LoadRules()
	assert.NoError(t, err)
	require.Len(t, loaded, 3)

	// Sorted by priority DESC so high-priority classes reinstall first.
	assert.Equal(t, uint16(200), loaded[0].Priority)
	assert.Equal(t, uint16(150), loaded[1].Priority)
	assert.Equal(t, uint16(1), loaded[2].Priority)
}

// TestSQLiteStorage_UpdateRule tests that re-saving a key updates in place
func TestSQLiteStorage_UpdateRule(t *testing.T) {
	storage, err := NewSQLiteStorage(testDBPath(t))
	require.NoError(t, err)
	defer storage.Close()

	rule := testRule(1, "10.2.1.10", 150, 3)
	require.NoError(t, storage.SaveRule(&rule))

	// Reroute to another egress.
	rule.OutputPort = 4
	err = storage.SaveRule(&rule)
	assert.NoError(t, err)

	rules, err := storage.LoadRules()
	assert.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, uint32(4), rules[0].OutputPort)
}

// TestSQLiteStorage_DeleteRule tests deleting a rule
func TestSQLiteStorage_DeleteRule(t *testing.T) {
	storage, err := NewSQLiteStorage(testDBPath(t))
	require.NoError(t, err)
	defer storage.Close()

	r1 := testRule(1, "10.2.1.10", 150, 3)
	r2 := testRule(1, "10.3.1.10", 200, 3)
	require.NoError(t, storage.SaveRule(&r1))
	require.NoError(t, storage.SaveRule(&r2))

	err = storage.DeleteRule(r1.Key())
	assert.NoError(t, err)

	rules, err := storage.LoadRules()
	assert.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, r2.Key(), rules[0].Key())
}

// TestSQLiteStorage_DeleteNonExistent tests deleting a missing rule
func TestSQLiteStorage_DeleteNonExistent(t *testing.T) {
	storage, err := NewSQLiteStorage(testDBPath(t))
	require.NoError(t, err)
	defer storage.Close()

	err = storage.DeleteRule("99/nope>nope/0")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rule not found")
}

// TestSQLiteStorage_RuleCount tests counting rules
func TestSQLiteStorage_RuleCount(t *testing.T) {
	storage, err := NewSQLiteStorage(testDBPath(t))
	require.NoError(t, err)
	defer storage.Close()

	count, err := storage.RuleCount()
	assert.NoError(t, err)
	assert.Equal(t, 0, count)

	for i := 0; i < 3; i++ {
		r := testRule(1, "10.2.1.10", 150, 3)
		r.Match.Marking = uint8(i)
		require.NoError(t, storage.SaveRule(&r))
	}

	count, err = storage.RuleCount()
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}

// TestSQLiteStorage_ClearAll tests clearing all rules
func TestSQLiteStorage_ClearAll(t *testing.T) {
	storage, err := NewSQLiteStorage(testDBPath(t))
	require.NoError(t, err)
	defer storage.Close()

	for i := 0; i < 5; i++ {
		r := testRule(uint64(i+1), "10.2.1.10", 150, 3)
		require.NoError(t, storage.SaveRule(&r))
	}

	err = storage.ClearAll()
	assert.NoError(t, err)

	count, _ := storage.RuleCount()
	assert.Equal(t, 0, count)
}

// TestSQLiteStorage_LoadEmpty tests loading from an empty database
func TestSQLiteStorage_LoadEmpty(t *testing.T) {
	storage, err := NewSQLiteStorage(testDBPath(t))
	require.NoError(t, err)
	defer storage.Close()

	rules, err := storage.LoadRules()
	assert.NoError(t, err)
	assert.Len(t, rules, 0)
}

// TestSQLiteStorage_InvalidPath tests creating storage with invalid path
func TestSQLiteStorage_InvalidPath(t *testing.T) {
	_, err := NewSQLiteStorage("/nonexistent/path/rules.db")
	assert.Error(t, err)
}
