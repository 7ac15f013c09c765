package encoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"go.uber.org/zap"
)

const stderrRingSize = 40

// Process wraps one ffmpeg subprocess that transmuxes an ingest byte stream
// into the session's segment directory. Exactly one ingest session owns a
// Process; Stop is safe to call more than once and Write after Stop is a
// no-op.
type Process struct {
	key        domain.StreamKey
	args       []string
	ffmpegPath string
	stopGrace  time.Duration
	onExit     func(error)
	logger     *zap.SugaredLogger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	started   atomic.Bool
	stopped   atomic.Bool
	exited    atomic.Bool
	bytesIn   atomic.Int64
	startedAt time.Time

	stderrMu   sync.Mutex
	stderrRing []string

	writeMu sync.Mutex
	done    chan struct{}
}

// Factory builds encoder processes from the configured ffmpeg binary and
// segment root.
type Factory struct {
	FFmpegPath      string
	SegmentRoot     string
	SegmentDuration time.Duration
	WindowSize      int
	StopGrace       time.Duration
	Logger          *zap.SugaredLogger
}

var _ ports.EncoderFactory = (*Factory)(nil)

func (f *Factory) New(key domain.StreamKey, videoKbps, audioKbps int, onExit func(error)) ports.Encoder {
	return &Process{
		key:        key,
		ffmpegPath: f.FFmpegPath,
		args: buildArgs(argSpec{
			SegmentRoot:     f.SegmentRoot,
			Key:             key,
			VideoKbps:       videoKbps,
			AudioKbps:       audioKbps,
			SegmentDuration: f.SegmentDuration,
			WindowSize:      f.WindowSize,
		}),
		stopGrace: f.StopGrace,
		onExit:    onExit,
		logger:    f.Logger,
		done:      make(chan struct{}),
	}
}

type argSpec struct {
	SegmentRoot     string
	Key             domain.StreamKey
	VideoKbps       int
	AudioKbps       int
	SegmentDuration time.Duration
	WindowSize      int
}

// buildArgs assembles the ffmpeg command line. Input arrives on stdin;
// output is an HLS window in the session's segment directory.
func buildArgs(spec argSpec) []string {
	segSeconds := int(spec.SegmentDuration.Seconds())
	if segSeconds <= 0 {
		segSeconds = 4
	}

	dir := fmt.Sprintf("%s/%s", spec.SegmentRoot, spec.Key)

	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", fmt.Sprintf("%dk", spec.VideoKbps),
		"-maxrate", fmt.Sprintf("%dk", spec.VideoKbps),
		"-bufsize", fmt.Sprintf("%dk", spec.VideoKbps*2),
		"-g", fmt.Sprintf("%d", segSeconds*30),
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", spec.AudioKbps),
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", segSeconds),
		"-hls_list_size", fmt.Sprintf("%d", spec.WindowSize),
		"-hls_flags", "delete_segments+independent_segments",
		"-hls_segment_filename", fmt.Sprintf("%s/seg%%03d.ts", dir),
		fmt.Sprintf("%s/index.m3u8", dir),
	}
}

// Start spawns the subprocess. It may be called at most once.
func (p *Process) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("encoder for %s already started", p.key)
	}

	cmd := exec.CommandContext(ctx, p.ffmpegPath, p.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", domain.ErrEncoderSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: stderr pipe: %v", domain.ErrEncoderSpawn, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEncoderSpawn, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.startedAt = time.Now()

	p.logger.Infow("encoder started",
		"stream_key", p.key,
		"pid", cmd.Process.Pid,
	)

	go p.collectStderr(stderr)
	go p.waitForExit()

	return nil
}

func (p *Process) collectStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		p.stderrMu.Lock()
		p.stderrRing = append(p.stderrRing, line)
		if len(p.stderrRing) > stderrRingSize {
			p.stderrRing = p.stderrRing[1:]
		}
		p.stderrMu.Unlock()
	}
}

func (p *Process) waitForExit() {
	err := p.cmd.Wait()
	p.exited.Store(true)
	close(p.done)

	if err != nil && !p.stopped.Load() {
		p.logger.Errorw("encoder exited unexpectedly",
			"stream_key", p.key,
			"error", err,
			"stderr_tail", p.stderrTail(),
		)
		if p.onExit != nil {
			p.onExit(fmt.Errorf("%w: %v", domain.ErrEncoderCrashed, err))
		}
		return
	}

	p.logger.Infow("encoder exited", "stream_key", p.key)
	if p.onExit != nil {
		p.onExit(nil)
	}
}

func (p *Process) stderrTail() []string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()
	tail := make([]string, len(p.stderrRing))
	copy(tail, p.stderrRing)
	return tail
}

// Write feeds media bytes to the subprocess. After Stop or a crash the
// bytes are silently discarded so the ingest loop never races the teardown.
func (p *Process) Write(b []byte) (int, error) {
	if p.stopped.Load() || p.exited.Load() {
		return len(b), nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.stopped.Load() || p.exited.Load() {
		return len(b), nil
	}

	n, err := p.stdin.Write(b)
	p.bytesIn.Add(int64(n))
	if err != nil {
		return n, fmt.Errorf("encoder write: %w", err)
	}
	return n, nil
}

// SampleHealth returns a point-in-time sample of the subprocess.
func (p *Process) SampleHealth() ports.EncoderHealth {
	health := ports.EncoderHealth{
		Running: p.started.Load() && !p.exited.Load(),
		BytesIn: p.bytesIn.Load(),
	}
	if p.started.Load() {
		health.UptimeMs = time.Since(p.startedAt).Milliseconds()
	}
	return health
}

// Stop closes stdin so ffmpeg can flush its last segment, then kills the
// subprocess if it outlives the grace period. Idempotent.
func (p *Process) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	if !p.started.Load() {
		return
	}

	p.writeMu.Lock()
	if p.stdin != nil {
		p.stdin.Close()
	}
	p.writeMu.Unlock()

	select {
	case <-p.done:
	case <-time.After(p.stopGrace):
		p.logger.Warnw("encoder did not exit in time, killing",
			"stream_key", p.key,
			"grace", p.stopGrace,
		)
		if p.cmd != nil && p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-p.done
	}
}
