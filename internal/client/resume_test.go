package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "resume.json")
	cache := NewResumeCache(path)

	entry, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, ResumeEntry{}, entry)

	want := ResumeEntry{ParticipantID: "p-1", RoomCode: "ABC234"}
	require.NoError(t, cache.Save(want))

	got, err := NewResumeCache(path).Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestResumeCacheClearRoomKeepsIdentity(t *testing.T) {
	cache := NewResumeCache(filepath.Join(t.TempDir(), "resume.json"))
	require.NoError(t, cache.Save(ResumeEntry{ParticipantID: "p-1", RoomCode: "ABC234"}))

	require.NoError(t, cache.ClearRoom())

	got, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, ResumeEntry{ParticipantID: "p-1"}, got)

	// clearing again is a no-op
	require.NoError(t, cache.ClearRoom())
}

func TestResumeCacheCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	cache := NewResumeCache(path)

	_, err := cache.Load()
	assert.Error(t, err)

	require.NoError(t, cache.ClearRoom())
	got, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, ResumeEntry{}, got)
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resume.json")

	require.NoError(t, writeFileAtomic(path, []byte("first"), 0o600))
	require.NoError(t, writeFileAtomic(path, []byte("second"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "resume.json", entries[0].Name())
}
