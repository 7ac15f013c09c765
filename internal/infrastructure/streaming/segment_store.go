package streaming

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"streamcast/internal/core/domain"

	"go.uber.org/zap"
)

// SegmentStore manages per-stream segment directories under a single root.
// Each live stream gets <root>/<key>/ holding index.m3u8 and a rolling
// window of .ts segments. The encoder subprocess writes its own output;
// WriteSegment exists for paths that produce segments in-process.
type SegmentStore struct {
	root       string
	windowSize int
	duration   time.Duration
	logger     *zap.SugaredLogger
}

func NewSegmentStore(root string, windowSize int, duration time.Duration, logger *zap.SugaredLogger) *SegmentStore {
	return &SegmentStore{
		root:       root,
		windowSize: windowSize,
		duration:   duration,
		logger:     logger,
	}
}

// Dir returns the segment directory for a stream.
func (s *SegmentStore) Dir(key domain.StreamKey) string {
	return filepath.Join(s.root, string(key))
}

// EnsureDir creates the stream's segment directory and returns its path.
func (s *SegmentStore) EnsureDir(key domain.StreamKey) (string, error) {
	dir := s.Dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create segment dir: %w", err)
	}
	return dir, nil
}

// PlaybackURL returns the manifest path served under the HTTP surface.
func (s *SegmentStore) PlaybackURL(key domain.StreamKey) string {
	return fmt.Sprintf("/live/%s/index.m3u8", key)
}

// WriteSegment stores one segment, regenerates the manifest, and prunes
// segments that fell out of the rolling window.
func (s *SegmentStore) WriteSegment(key domain.StreamKey, index int, data []byte) error {
	dir, err := s.EnsureDir(key)
	if err != nil {
		return err
	}

	name := segmentName(index)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}

	first := index - s.windowSize + 1
	if first < 0 {
		first = 0
	}

	manifest := s.renderManifest(key, first, index)
	if err := os.WriteFile(filepath.Join(dir, "index.m3u8"), []byte(manifest), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	s.prune(dir, first)
	return nil
}

// renderManifest generates the HLS media playlist for the current window.
func (s *SegmentStore) renderManifest(key domain.StreamKey, first, last int) string {
	playlist := "#EXTM3U\n"
	playlist += "#EXT-X-VERSION:3\n"
	playlist += fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", int(s.duration.Seconds()))
	playlist += fmt.Sprintf("#EXT-X-MEDIA-SEQUENCE:%d\n", first)

	for i := first; i <= last; i++ {
		playlist += fmt.Sprintf("#EXTINF:%.3f,\n", s.duration.Seconds())
		playlist += segmentName(i) + "\n"
	}

	return playlist
}

// prune removes segments older than the window start. Failures are logged
// only; a stale segment on disk never fails the stream.
func (s *SegmentStore) prune(dir string, first int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.logger.Warnw("failed to scan segment dir", "dir", dir, "error", err)
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var idx int
		if _, err := fmt.Sscanf(name, "seg%03d.ts", &idx); err != nil {
			continue
		}
		if idx < first {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				s.logger.Warnw("failed to prune segment", "segment", name, "error", err)
			}
		}
	}
}

// RemoveAfter deletes the stream's artifacts once the grace window passes,
// keeping segments available for viewers draining their buffers.
func (s *SegmentStore) RemoveAfter(key domain.StreamKey, grace time.Duration) {
	dir := s.Dir(key)
	time.AfterFunc(grace, func() {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warnw("failed to remove segment dir",
				"stream_key", key,
				"dir", dir,
				"error", err,
			)
			return
		}
		s.logger.Infow("removed stream artifacts", "stream_key", key)
	})
}

func segmentName(index int) string {
	return fmt.Sprintf("seg%03d.ts", index)
}
