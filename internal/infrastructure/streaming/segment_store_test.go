package streaming

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T, windowSize int) *SegmentStore {
	t.Helper()
	return NewSegmentStore(t.TempDir(), windowSize, 4*time.Second, zap.NewNop().Sugar())
}

func TestSegmentStore_EnsureDirAndPlaybackURL(t *testing.T) {
	store := newStore(t, 6)

	dir, err := store.EnsureDir("key-a")
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Creating it again is fine.
	_, err = store.EnsureDir("key-a")
	assert.NoError(t, err)

	assert.Equal(t, "/live/key-a/index.m3u8", store.PlaybackURL("key-a"))
}

func TestSegmentStore_WriteSegmentRollsWindow(t *testing.T) {
	store := newStore(t, 3)

	for i := 0; i <= 5; i++ {
		require.NoError(t, store.WriteSegment("key-a", i, []byte("segment data")))
	}

	dir := store.Dir("key-a")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var segments []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".ts") {
			segments = append(segments, e.Name())
		}
	}

	// Only the last three survive the prune.
	assert.Equal(t, []string{"seg003.ts", "seg004.ts", "seg005.ts"}, segments)

	manifest, err := os.ReadFile(filepath.Join(dir, "index.m3u8"))
	require.NoError(t, err)
	text := string(manifest)

	assert.Contains(t, text, "#EXTM3U")
	assert.Contains(t, text, "#EXT-X-MEDIA-SEQUENCE:3")
	assert.Contains(t, text, "#EXT-X-TARGETDURATION:4")
	assert.Contains(t, text, "seg005.ts")
	assert.NotContains(t, text, "seg002.ts")
}

func TestSegmentStore_ManifestBeforeWindowFills(t *testing.T) {
	store := newStore(t, 6)

	require.NoError(t, store.WriteSegment("key-a", 0, []byte("first")))

	manifest, err := os.ReadFile(filepath.Join(store.Dir("key-a"), "index.m3u8"))
	require.NoError(t, err)

	assert.Contains(t, string(manifest), "#EXT-X-MEDIA-SEQUENCE:0")
	assert.Contains(t, string(manifest), "seg000.ts")
}

func TestSegmentStore_RemoveAfterGrace(t *testing.T) {
	store := newStore(t, 6)

	require.NoError(t, store.WriteSegment("key-a", 0, []byte("data")))
	dir := store.Dir("key-a")

	store.RemoveAfter("key-a", 20*time.Millisecond)

	// Still there inside the grace window.
	_, err := os.Stat(dir)
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dir)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)
}
