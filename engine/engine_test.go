package engine

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/d1nch8g/gpiobell/playlist"
)

type playback struct {
	clip  string
	start time.Time
	stop  time.Time
}

// fakePlayer records every Play call. With hold set it blocks until cancelled.
type fakePlayer struct {
	hold     bool
	err      error
	panicMsg string

	running atomic.Int32
	overlap atomic.Bool

	mu        sync.Mutex
	started   []string
	playbacks []playback
}

func (p *fakePlayer) Play(ctx context.Context, clip string) error {
	if p.running.Add(1) > 1 {
		p.overlap.Store(true)
	}
	start := time.Now()
	p.mu.Lock()
	p.started = append(p.started, clip)
	p.mu.Unlock()

	err := p.err
	if p.hold {
		<-ctx.Done()
		err = ctx.Err()
	}

	p.mu.Lock()
	p.playbacks = append(p.playbacks, playback{clip: clip, start: start, stop: time.Now()})
	p.mu.Unlock()
	p.running.Add(-1)

	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	return err
}

func (p *fakePlayer) startedClips() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.started...)
}

func (p *fakePlayer) finished() []playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]playback(nil), p.playbacks...)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEngine[K comparable](t *testing.T, player *fakePlayer, config EngineConfig) *Engine[K] {
	t.Helper()
	e := NewEngine[K](config, playlist.NewRegistry[K](), player, nil, zerolog.Nop())
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTriggerScenario(t *testing.T) {
	t.Parallel()
	player := &fakePlayer{hold: true}
	e := newTestEngine[int](t, player, EngineConfig{})

	if err := e.Register(1, "bell.wav"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := e.Register(2, "x.wav", "y.wav"); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	steps := []struct {
		id   int
		want string
	}{
		{2, "x.wav"},
		{2, "y.wav"},
		{1, "bell.wav"},
		{2, "x.wav"},
	}
	for i, step := range steps {
		if err := e.Trigger(step.id); err != nil {
			t.Fatalf("Trigger(%d) error: %v", step.id, err)
		}
		clip, ok := e.Active()
		if !ok || clip != step.want {
			t.Fatalf("step %d: Active = %q, %v, want %q", i, clip, ok, step.want)
		}
	}

	waitFor(t, "last clip to start", func() bool { return len(player.startedClips()) == len(steps) })
	got := player.startedClips()
	for i, step := range steps {
		if got[i] != step.want {
			t.Fatalf("started = %v, want order x, y, bell, x", got)
		}
	}
	if n := len(player.finished()); n != 3 {
		t.Fatalf("preempted playbacks = %d, want 3", n)
	}
	if e.State() != Playing {
		t.Fatalf("State = %v, want playing", e.State())
	}
}

func TestTriggerAtMostOneActive(t *testing.T) {
	t.Parallel()
	player := &fakePlayer{hold: true}
	e := newTestEngine[int](t, player, EngineConfig{})

	for id := 0; id < 4; id++ {
		if err := e.Register(id, "a.wav", "b.wav", "c.wav"); err != nil {
			t.Fatalf("Register error: %v", err)
		}
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := e.Trigger((g + i) % 4); err != nil {
					t.Errorf("Trigger error: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	if err := e.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if player.overlap.Load() {
		t.Fatal("two playbacks were running at the same time")
	}

	playbacks := player.finished()
	if len(playbacks) != 200 {
		t.Fatalf("playbacks = %d, want 200", len(playbacks))
	}
	for i := 1; i < len(playbacks); i++ {
		if playbacks[i].start.Before(playbacks[i-1].stop) {
			t.Fatalf("playback %d started at %v before playback %d stopped at %v",
				i, playbacks[i].start, i-1, playbacks[i-1].stop)
		}
	}
}

func TestTriggerUnknownID(t *testing.T) {
	t.Parallel()
	player := &fakePlayer{hold: true}
	e := newTestEngine[string](t, player, EngineConfig{})
	_ = e.Register("A", "a0.wav", "a1.wav")

	if err := e.Trigger("A"); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}

	err := e.Trigger("missing")
	if !errors.Is(err, ErrUnknownID) {
		t.Fatalf("Trigger error = %v, want ErrUnknownID", err)
	}

	if clip, ok := e.Active(); !ok || clip != "a0.wav" {
		t.Fatalf("Active = %q, %v, want a0.wav", clip, ok)
	}
	if cur, _ := e.registry.Cursor("A"); cur != 1 {
		t.Fatalf("Cursor(A) = %d, want 1", cur)
	}
	if last, _ := e.LastTriggered(); last != "A" {
		t.Fatalf("LastTriggered = %q, want A", last)
	}
	if n := len(player.finished()); n != 0 {
		t.Fatalf("finished playbacks = %d, want 0", n)
	}
}

func TestTriggerInterleavedIDs(t *testing.T) {
	t.Parallel()
	player := &fakePlayer{hold: true}
	e := newTestEngine[string](t, player, EngineConfig{})
	_ = e.Register("A", "a0", "a1")
	_ = e.Register("B", "b0")

	for _, id := range []string{"A", "B", "A"} {
		if err := e.Trigger(id); err != nil {
			t.Fatalf("Trigger(%s) error: %v", id, err)
		}
	}

	waitFor(t, "three starts", func() bool { return len(player.startedClips()) == 3 })
	got := strings.Join(player.startedClips(), ",")
	if got != "a0,b0,a1" {
		t.Fatalf("started = %s, want a0,b0,a1", got)
	}
}

func TestReRegisterResetsCursor(t *testing.T) {
	t.Parallel()
	player := &fakePlayer{hold: true}
	e := newTestEngine[int](t, player, EngineConfig{})
	_ = e.Register(9, "a.wav", "b.wav")
	_ = e.Trigger(9)

	_ = e.Register(9, "c.wav", "d.wav")
	_ = e.Trigger(9)

	if clip, _ := e.Active(); clip != "c.wav" {
		t.Fatalf("Active = %q, want c.wav", clip)
	}
}

func TestPlaybackFailureIsConfined(t *testing.T) {
	t.Parallel()
	logs := &syncBuffer{}
	player := &fakePlayer{err: errors.New("file not found")}
	e := NewEngine[int](EngineConfig{}, playlist.NewRegistry[int](), player, nil, zerolog.New(logs))
	t.Cleanup(func() { _ = e.Close() })
	_ = e.Register(1, "missing.wav")

	if err := e.Trigger(1); err != nil {
		t.Fatalf("Trigger error = %v, want nil", err)
	}
	waitFor(t, "failure to be logged", func() bool { return strings.Contains(logs.String(), "playback failed") })

	if !strings.Contains(logs.String(), "file not found") {
		t.Fatalf("log does not carry the player error:\n%s", logs.String())
	}
	if err := e.Trigger(1); err != nil {
		t.Fatalf("second Trigger error = %v, want nil", err)
	}
}

func TestPlayerPanicIsConfined(t *testing.T) {
	t.Parallel()
	logs := &syncBuffer{}
	player := &fakePlayer{panicMsg: "decoder exploded"}
	e := NewEngine[int](EngineConfig{}, playlist.NewRegistry[int](), player, nil, zerolog.New(logs))
	t.Cleanup(func() { _ = e.Close() })
	_ = e.Register(1, "a.wav")

	if err := e.Trigger(1); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	waitFor(t, "panic to be logged", func() bool { return strings.Contains(logs.String(), "decoder exploded") })
	waitFor(t, "idle", func() bool { return e.State() == Idle })
}

func TestNaturalCompletionReturnsToIdle(t *testing.T) {
	t.Parallel()
	player := &fakePlayer{}
	e := newTestEngine[int](t, player, EngineConfig{})
	_ = e.Register(1, "short.wav")

	if e.State() != Idle {
		t.Fatalf("initial State = %v, want idle", e.State())
	}
	if err := e.Trigger(1); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	waitFor(t, "idle", func() bool { return e.State() == Idle })

	if _, ok := e.Active(); ok {
		t.Fatal("Active reports a clip after completion")
	}
	if last, ok := e.LastTriggered(); !ok || last != 1 {
		t.Fatalf("LastTriggered = %d, %v, want 1, true", last, ok)
	}
}

func TestCloseStopsPlayback(t *testing.T) {
	t.Parallel()
	player := &fakePlayer{hold: true}
	e := newTestEngine[int](t, player, EngineConfig{})
	_ = e.Register(1, "long.wav")
	_ = e.Trigger(1)

	if err := e.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if n := len(player.finished()); n != 1 {
		t.Fatalf("finished playbacks = %d, want 1", n)
	}
	if e.State() != Idle {
		t.Fatalf("State = %v, want idle", e.State())
	}
	if err := e.Trigger(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Trigger after Close error = %v, want ErrClosed", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

// stubbornPlayer ignores cancellation until released.
type stubbornPlayer struct {
	release chan struct{}
}

func (p *stubbornPlayer) Play(ctx context.Context, clip string) error {
	<-p.release
	return nil
}

func TestStopTimeout(t *testing.T) {
	t.Parallel()
	player := &stubbornPlayer{release: make(chan struct{})}
	defer close(player.release)

	e := NewEngine[int](EngineConfig{StopTimeout: 20 * time.Millisecond}, playlist.NewRegistry[int](), player, nil, zerolog.Nop())
	_ = e.Register(1, "a.wav")
	_ = e.Trigger(1)

	if err := e.Close(); !errors.Is(err, ErrConcurrencyViolation) {
		t.Fatalf("Close error = %v, want ErrConcurrencyViolation", err)
	}
}

// lingeringPlayer returns lag after its context is cancelled and tracks
// how many plays run at once.
type lingeringPlayer struct {
	lag time.Duration

	running atomic.Int32
	peak    atomic.Int32
	started chan string
}

func (p *lingeringPlayer) Play(ctx context.Context, clip string) error {
	n := p.running.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	defer p.running.Add(-1)

	p.started <- clip
	<-ctx.Done()
	time.Sleep(p.lag)
	return ctx.Err()
}

func TestSlowStopNeverOverlaps(t *testing.T) {
	t.Parallel()
	player := &lingeringPlayer{lag: 300 * time.Millisecond, started: make(chan string, 4)}
	e := NewEngine[int](EngineConfig{StopTimeout: 50 * time.Millisecond}, playlist.NewRegistry[int](), player, nil, zerolog.Nop())
	t.Cleanup(func() { _ = e.Close() })
	_ = e.Register(1, "a.wav", "b.wav")

	if err := e.Trigger(1); err != nil {
		t.Fatalf("Trigger error: %v", err)
	}
	<-player.started

	if err := e.Trigger(1); !errors.Is(err, ErrConcurrencyViolation) {
		t.Fatalf("Trigger while previous unit lingers = %v, want ErrConcurrencyViolation", err)
	}
	if clip, ok := e.Active(); !ok || clip != "a.wav" {
		t.Fatalf("Active = %q, %v, want a.wav", clip, ok)
	}
	if cur, _ := e.registry.Cursor(1); cur != 1 {
		t.Fatalf("Cursor = %d after dropped trigger, want 1", cur)
	}

	waitFor(t, "lingering unit to exit", func() bool { return e.State() == Idle })
	if err := e.Trigger(1); err != nil {
		t.Fatalf("Trigger after exit error: %v", err)
	}
	if got := <-player.started; got != "b.wav" {
		t.Fatalf("started = %q, want b.wav", got)
	}
	if peak := player.peak.Load(); peak != 1 {
		t.Fatalf("peak concurrent plays = %d, want 1", peak)
	}
}

func TestAudioRootResolution(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	player := &fakePlayer{hold: true}
	e := newTestEngine[int](t, player, EngineConfig{AudioRoot: root})
	abs := filepath.Join(t.TempDir(), "abs.wav")
	_ = e.Register(1, "rel.wav", abs)

	_ = e.Trigger(1)
	if clip, _ := e.Active(); clip != filepath.Join(root, "rel.wav") {
		t.Fatalf("Active = %q, want %q", clip, filepath.Join(root, "rel.wav"))
	}
	_ = e.Trigger(1)
	if clip, _ := e.Active(); clip != abs {
		t.Fatalf("Active = %q, want %q", clip, abs)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Playing, "playing"},
		{State(7), "state(7)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Fatalf("String() = %s, want %s", got, tt.want)
		}
	}
}
