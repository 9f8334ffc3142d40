package senders

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/mail-triage/internal/core"
)

func profileWith(sender string, rec Record) *Profile {
	p := NewProfile()
	p.Senders[sender] = &rec
	return p
}

func TestPrior_InsufficientHistory(t *testing.T) {
	p := profileWith("a@x.com", Record{Seen: 2, FlagCount: 2})

	points, name := p.Prior("a@x.com", 8, -12)
	assert.Equal(t, 0, points)
	assert.Equal(t, PriorSignal, name)

	points, _ = p.Prior("unknown@x.com", 8, -12)
	assert.Equal(t, 0, points)

	points, _ = p.Prior("", 8, -12)
	assert.Equal(t, 0, points)

	var nilProfile *Profile
	points, _ = nilProfile.Prior("a@x.com", 8, -12)
	assert.Equal(t, 0, points)
}

func TestPrior_Bounded(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want int
	}{
		{"always actionable hits boost cap", Record{Seen: 10, FlagCount: 10}, 8},
		{"always ignored hits penalty floor", Record{Seen: 10, IgnoreCount: 10}, -12},
		{"even split is neutral", Record{Seen: 4, FlagCount: 1, SurfaceCount: 1, IgnoreCount: 2}, 0},
		{"two thirds responded", Record{Seen: 3, SurfaceCount: 2, IgnoreCount: 1}, 4},
		{"one third responded", Record{Seen: 3, FlagCount: 1, IgnoreCount: 2}, -4},
		// (1/16 - 0.5) * 24 = -10.5 rounds to even
		{"half rounds to even", Record{Seen: 16, FlagCount: 1, IgnoreCount: 15}, -10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profileWith("s@x.com", tt.rec)
			points, _ := p.Prior("s@x.com", 8, -12)
			assert.Equal(t, tt.want, points)
			assert.GreaterOrEqual(t, points, -12)
			assert.LessOrEqual(t, points, 8)
		})
	}
}

func TestPrior_CaseInsensitiveLookup(t *testing.T) {
	p := profileWith("boss@x.com", Record{Seen: 5, FlagCount: 5})
	points, _ := p.Prior("Boss@X.com", 12, -12)
	assert.Equal(t, 12, points)
}

func TestUpdate(t *testing.T) {
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	p := profileWith("a@x.com", Record{Seen: 1, IgnoreCount: 1})

	Update(p, []Observation{
		{Sender: "A@x.com", Decision: core.DecisionFlag},
		{Sender: "a@x.com", Decision: core.DecisionSurface},
		{Sender: "b@y.com", Decision: core.DecisionIgnore},
		{Sender: "", Decision: core.DecisionFlag},
		{Sender: "c@z.com", Decision: core.Decision("bogus")},
	}, now)

	a := p.Senders["a@x.com"]
	require.NotNil(t, a)
	assert.Equal(t, 3, a.Seen)
	assert.Equal(t, 1, a.FlagCount)
	assert.Equal(t, 1, a.SurfaceCount)
	assert.Equal(t, 1, a.IgnoreCount)
	require.NotNil(t, a.LastSeen)
	assert.Equal(t, "2026-02-15T12:00:00Z", *a.LastSeen)

	assert.Equal(t, 1, p.Senders["b@y.com"].IgnoreCount)
	assert.Equal(t, 1, p.Senders["c@z.com"].IgnoreCount)
	assert.Len(t, p.Senders, 3)
}

func TestUpdate_NilProfile(t *testing.T) {
	p := Update(nil, []Observation{{Sender: "a@x.com", Decision: core.DecisionFlag}}, time.Now())
	require.NotNil(t, p)
	assert.Equal(t, 1, p.Senders["a@x.com"].FlagCount)
}

func TestClone_IsIndependent(t *testing.T) {
	p := profileWith("a@x.com", Record{Seen: 3})
	cp := p.Clone()
	cp.Senders["a@x.com"].Seen = 99
	assert.Equal(t, 3, p.Senders["a@x.com"].Seen)
}

func TestLoadFile_FallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()

	p, err := LoadFile(filepath.Join(dir, "missing.json"))
	assert.NoError(t, err)
	assert.Empty(t, p.Senders)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	p, err = LoadFile(bad)
	assert.Error(t, err)
	assert.NotNil(t, p)
	assert.Empty(t, p.Senders)

	wrongShape := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(wrongShape, []byte(`[1,2,3]`), 0644))
	p, err = LoadFile(wrongShape)
	assert.Error(t, err)
	assert.Empty(t, p.Senders)

	noKey := filepath.Join(dir, "nokey.json")
	require.NoError(t, os.WriteFile(noKey, []byte(`{"other": {}}`), 0644))
	p, err = LoadFile(noKey)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Empty(t, p.Senders)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "senders.json")
	ts := "2026-02-15T12:00:00Z"
	p := NewProfile()
	p.Senders["a@x.com"] = &Record{Seen: 4, FlagCount: 1, SurfaceCount: 2, IgnoreCount: 1, LastSeen: &ts}
	p.Senders["b@y.com"] = &Record{Seen: 1, IgnoreCount: 1}

	require.NoError(t, SaveFile(p, path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"senders\"")
	assert.Contains(t, string(data), `"last_seen": null`)
}

func TestSaveFile_IsWorldReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "senders.json")
	require.NoError(t, SaveFile(NewProfile(), path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveFile_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	err := SaveFile(NewProfile(), filepath.Join(blocker, "senders.json"))
	assert.Error(t, err)
}
