package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/slowforest/internal/ir"
)

func TestStore_EmptyReportsAbsent(t *testing.T) {
	s := New()

	_, ok := s.Value("name")
	assert.False(t, ok)
	_, ok = s.ValueAt("name", 10)
	assert.False(t, ok)
	_, ok = s.UpdateTime("name")
	assert.False(t, ok)
	_, ok = s.LatestUpdateTime()
	assert.False(t, ok)
	assert.Empty(t, s.AllValues())
	assert.Empty(t, s.KnownFields())
}

func TestStore_LatestValueWins(t *testing.T) {
	s := New()
	s.Set("f", ir.IRString("v1"), 1)
	s.PersistAll()
	s.Set("f", ir.IRString("v2"), 2)

	v, ok := s.Value("f")
	require.True(t, ok)
	assert.Equal(t, ir.IRString("v2"), v)

	v, ok = s.ValueAt("f", 1)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("v1"), v)
}

func TestStore_SetDropsNonPersistentSnapshots(t *testing.T) {
	s := New()
	s.Set("f", ir.IRString("v1"), 1)
	s.Set("f", ir.IRString("v2"), 2)

	// v1 was never persisted, so the history before t=2 is gone.
	_, ok := s.ValueAt("f", 1)
	assert.False(t, ok)
	assert.Len(t, s.Snapshots(), 1)
}

func TestStore_PersistFreezesBaseline(t *testing.T) {
	s := New()
	s.Seed(ir.Values{"name": ir.IRString(""), "pet": ir.IRString("cat")}, 1)
	s.Set("name", ir.IRString("Ann"), 2)

	assert.True(t, s.PersistAll())
	assert.False(t, s.PersistAll())
	persistedAt := ir.Time(3)

	s.Set("name", ir.IRString("Bob"), 4)
	s.Set("name", ir.IRString("Cy"), 5)

	v, ok := s.ValueAt("name", persistedAt)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("Ann"), v)

	v, ok = s.Value("name")
	require.True(t, ok)
	assert.Equal(t, ir.IRString("Cy"), v)

	// Bob was replaced before any persist.
	v, ok = s.ValueAt("name", 4)
	require.True(t, ok)
	assert.Equal(t, ir.IRString("Ann"), v)

	v, ok = s.ValueAt("name", 1)
	require.True(t, ok)
	assert.Equal(t, ir.IRString(""), v)
}

func TestStore_AllValuesAt(t *testing.T) {
	s := New()
	s.Seed(ir.Values{"name": ir.IRString("")}, 1)
	s.Set("name", ir.IRString("Ann"), 2)
	s.PersistAll()
	s.Set("pet", ir.IRString("cat"), 3)

	assert.Equal(t, ir.Values{"name": ir.IRString("")}, s.AllValuesAt(1))
	assert.Equal(t, ir.Values{"name": ir.IRString("Ann")}, s.AllValuesAt(2))
	assert.Equal(t, ir.Values{"name": ir.IRString("Ann"), "pet": ir.IRString("cat")}, s.AllValues())
	assert.Empty(t, s.AllValuesAt(0))
}

func TestStore_ExplicitNullIsAValue(t *testing.T) {
	s := New()
	s.Set("nickname", ir.IRNull{}, 1)

	v, ok := s.Value("nickname")
	require.True(t, ok)
	assert.Equal(t, ir.IRNull{}, v)
	assert.Contains(t, s.AllValues(), "nickname")
}

func TestStore_FieldsChangedSince(t *testing.T) {
	s := New()
	s.Seed(ir.Values{"a": ir.IRInt(1), "b": ir.IRInt(1)}, 1)
	s.Set("c", ir.IRInt(2), 2)
	s.Set("a", ir.IRInt(3), 3)
	s.Set("a", ir.IRInt(4), 4)

	assert.Equal(t, []string{"a", "c"}, s.FieldsChangedSince(1))
	assert.Equal(t, []string{"a"}, s.FieldsChangedSince(2))
	assert.Empty(t, s.FieldsChangedSince(4))

	assert.True(t, s.ChangedSince(ir.Fields("a", "z"), 2))
	assert.False(t, s.ChangedSince(ir.Fields("b"), 1))
	assert.True(t, s.ChangedSince(ir.AllFields(), 3))
	assert.False(t, s.ChangedSince(ir.AllFields(), 4))
	assert.False(t, s.ChangedSince(ir.Fields(), 0))
}

func TestStore_UpdateTimes(t *testing.T) {
	s := New()
	s.Seed(ir.Values{"a": ir.IRInt(1)}, 1)
	s.Set("b", ir.IRInt(2), 5)

	ts, ok := s.UpdateTime("a")
	require.True(t, ok)
	assert.Equal(t, ir.Time(1), ts)

	ts, ok = s.LatestUpdateTime()
	require.True(t, ok)
	assert.Equal(t, ir.Time(5), ts)

	assert.Equal(t, []string{"a", "b"}, s.KnownFields())
}

func TestStore_SnapshotsIsCopy(t *testing.T) {
	s := New()
	s.Set("a", ir.IRInt(1), 1)

	snaps := s.Snapshots()
	snaps[0].Value = ir.IRInt(99)

	v, _ := s.Value("a")
	assert.Equal(t, ir.IRInt(1), v)
}
