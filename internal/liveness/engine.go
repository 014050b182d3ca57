package liveness

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"sync"
	"time"
)

// State is the challenge session lifecycle. Done, TimedOut, Cancelled and
// Failed are terminal; TimedOut is only reachable before success, since once
// the predicate fires the deadline no longer applies.
type State string

const (
	StatePromptSelected State = "prompt_selected"
	StateWatching       State = "watching"
	StateSucceeded      State = "succeeded"
	StateCapturing      State = "capturing"
	StateDone           State = "done"
	StateTimedOut       State = "timed_out"
	StateCancelled      State = "cancelled"
	StateFailed         State = "failed"
)

var (
	ErrTimedOut    = errors.New("liveness: no matching gesture before the deadline")
	ErrNoPrompts   = errors.New("liveness: prompt table is empty")
	ErrNotFinished = errors.New("liveness: session still in progress")
)

// FrameSource is the capture device. Acquire failing is fatal to the whole
// session; Release is called exactly once on every exit path.
type FrameSource interface {
	Acquire(ctx context.Context) error
	Capture(ctx context.Context) (image.Image, error)
	Release() error
}

const (
	defaultTimeout       = 15 * time.Second
	defaultBurstSize     = 5
	defaultBurstInterval = 400 * time.Millisecond
	defaultPollInterval  = 50 * time.Millisecond
)

// Config tunes one engine. Zero values fall back to the production defaults,
// which keeps tests free to shrink the clock.
type Config struct {
	Prompts       []Prompt
	Timeout       time.Duration
	BurstSize     int
	BurstInterval time.Duration
	PollInterval  time.Duration
}

type Engine struct {
	prompts       []Prompt
	timeout       time.Duration
	burstSize     int
	burstInterval time.Duration
	pollInterval  time.Duration

	pick func(n int) int
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		prompts:       cfg.Prompts,
		timeout:       cfg.Timeout,
		burstSize:     cfg.BurstSize,
		burstInterval: cfg.BurstInterval,
		pollInterval:  cfg.PollInterval,
		pick:          rand.Intn,
	}
	if len(e.prompts) == 0 {
		e.prompts = DefaultPrompts()
	}
	if e.timeout <= 0 {
		e.timeout = defaultTimeout
	}
	if e.burstSize <= 0 {
		e.burstSize = defaultBurstSize
	}
	if e.burstInterval <= 0 {
		e.burstInterval = defaultBurstInterval
	}
	if e.pollInterval <= 0 {
		e.pollInterval = defaultPollInterval
	}
	return e
}

// Start acquires the capture device, picks a prompt and launches the session
// loop. An acquisition failure aborts before any session state exists.
func (e *Engine) Start(ctx context.Context, src FrameSource) (*Session, error) {
	if len(e.prompts) == 0 {
		return nil, ErrNoPrompts
	}
	if err := src.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquiring capture device: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		prompt:        e.prompts[e.pick(len(e.prompts))],
		src:           src,
		burstSize:     e.burstSize,
		burstInterval: e.burstInterval,
		pollInterval:  e.pollInterval,
		timeout:       e.timeout,
		state:         StatePromptSelected,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// Session is one liveness attempt. Not safe to share between concurrent
// signing attempts; one session per device.
type Session struct {
	prompt        Prompt
	src           FrameSource
	burstSize     int
	burstInterval time.Duration
	pollInterval  time.Duration
	timeout       time.Duration

	mu     sync.Mutex
	state  State
	latest *Landmarks

	// device serializes Capture against Release, so teardown can never pull
	// the device out from under an in-flight capture.
	device sync.Mutex

	cancel   context.CancelFunc
	done     chan struct{}
	teardown sync.Once

	best image.Image
	err  error
}

// Prompt returns the challenge the user must perform.
func (s *Session) Prompt() Prompt { return s.prompt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Offer hands the session the newest landmark set. The slot holds exactly one
// entry and the latest write wins; frames offered after success or timeout
// are ignored.
func (s *Session) Offer(lm Landmarks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePromptSelected:
		s.state = StateWatching
	case StateWatching:
	default:
		return
	}
	s.latest = &lm
}

// Done closes when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the best-lit captured frame. Only valid once Done is closed.
func (s *Session) Result() (image.Image, error) {
	select {
	case <-s.done:
	default:
		return nil, ErrNotFinished
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.best, s.err
}

// Cancel stops the session immediately, discarding any buffered frames. Once
// it returns the device has been released and will not be touched again.
func (s *Session) Cancel() { s.finish(nil, context.Canceled, StateCancelled) }

func (s *Session) run(ctx context.Context) {
	deadline := time.NewTimer(s.timeout)
	defer deadline.Stop()
	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish(nil, ctx.Err(), StateCancelled)
			return
		case <-deadline.C:
			s.finish(nil, ErrTimedOut, StateTimedOut)
			return
		case <-poll.C:
			if s.takeAndEvaluate() {
				s.capture(ctx)
				return
			}
		}
	}
}

// takeAndEvaluate consumes the buffered landmark set, if any, and runs the
// prompt predicate. The first true evaluation moves the session to Succeeded;
// there is no re-arming afterwards. The transition is rechecked under the
// lock: teardown may land a terminal state between evaluation and here, and a
// terminal state is never overwritten.
func (s *Session) takeAndEvaluate() bool {
	s.mu.Lock()
	lm := s.latest
	s.latest = nil
	watching := s.state == StateWatching
	s.mu.Unlock()

	if !watching || lm == nil || !s.prompt.Satisfied(*lm) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWatching {
		return false
	}
	s.state = StateSucceeded
	return true
}

// capture runs the fixed burst. The cadence is not cancellable mid-burst
// except by overall session teardown; a capture error is fatal.
func (s *Session) capture(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateSucceeded {
		// Teardown won the race after the predicate fired; the outcome is
		// already recorded.
		s.mu.Unlock()
		return
	}
	s.state = StateCapturing
	s.mu.Unlock()

	frames := make([]image.Image, 0, s.burstSize)
	for i := 0; i < s.burstSize; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				s.finish(nil, ctx.Err(), StateCancelled)
				return
			case <-time.After(s.burstInterval):
			}
		}
		img, err := s.captureFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(nil, ctx.Err(), StateCancelled)
			} else {
				s.finish(nil, fmt.Errorf("capturing frame %d: %w", i+1, err), StateFailed)
			}
			return
		}
		frames = append(frames, img)
	}

	best, _, err := SelectBest(frames)
	if err != nil {
		s.finish(nil, err, StateFailed)
		return
	}
	s.finish(best, nil, StateDone)
}

// captureFrame grabs one frame while holding the device lock. finish cancels
// the context before it acquires the same lock to release the device, so a
// capture that gets the lock after Release always observes the cancellation
// and backs off instead of touching a released device.
func (s *Session) captureFrame(ctx context.Context) (image.Image, error) {
	s.device.Lock()
	defer s.device.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.src.Capture(ctx)
}

// finish releases the device, stops the loop and records the terminal state.
// Runs its body exactly once no matter how many exit paths race.
func (s *Session) finish(best image.Image, err error, terminal State) {
	s.teardown.Do(func() {
		s.mu.Lock()
		s.best = best
		s.err = err
		s.state = terminal
		s.mu.Unlock()

		s.cancel()
		s.device.Lock()
		s.src.Release()
		s.device.Unlock()
		close(s.done)
	})
}
