package liveness

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"
)

func neutralFace() Landmarks {
	return Landmarks{
		LeftEyeTop:     Landmark{X: 0.40, Y: 0.38},
		LeftEyeBottom:  Landmark{X: 0.40, Y: 0.41},
		RightEyeTop:    Landmark{X: 0.60, Y: 0.38},
		RightEyeBottom: Landmark{X: 0.60, Y: 0.41},
		MouthLeft:      Landmark{X: 0.44, Y: 0.68},
		MouthRight:     Landmark{X: 0.56, Y: 0.68},
		UpperLip:       Landmark{X: 0.50, Y: 0.66},
		LowerLip:       Landmark{X: 0.50, Y: 0.72},
		NoseTip:        Landmark{X: 0.50, Y: 0.50},
		FaceLeft:       Landmark{X: 0.30, Y: 0.50},
		FaceRight:      Landmark{X: 0.70, Y: 0.50},
		Forehead:       Landmark{X: 0.50, Y: 0.20},
		Chin:           Landmark{X: 0.50, Y: 0.80},
	}
}

func findPrompt(t *testing.T, id string) Prompt {
	t.Helper()
	for _, p := range DefaultPrompts() {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("prompt %q not in default table", id)
	return Prompt{}
}

func TestPromptPredicates(t *testing.T) {
	tests := []struct {
		prompt string
		mutate func(lm *Landmarks)
		want   bool
	}{
		{PromptBlink, func(lm *Landmarks) {
			lm.LeftEyeBottom.Y = lm.LeftEyeTop.Y + 0.005
			lm.RightEyeBottom.Y = lm.RightEyeTop.Y + 0.005
		}, true},
		{PromptBlink, func(lm *Landmarks) {
			lm.LeftEyeBottom.Y = lm.LeftEyeTop.Y + 0.005
			// right eye stays open
		}, false},
		{PromptSmile, func(lm *Landmarks) {
			lm.MouthLeft.X, lm.MouthRight.X = 0.40, 0.60
			lm.UpperLip.Y, lm.LowerLip.Y = 0.66, 0.71
		}, true},
		{PromptSmile, func(lm *Landmarks) {
			// wide but too flat
			lm.MouthLeft.X, lm.MouthRight.X = 0.40, 0.60
			lm.UpperLip.Y, lm.LowerLip.Y = 0.66, 0.68
		}, false},
		{PromptSmile, nil, false},
		{PromptTurnLeft, func(lm *Landmarks) { lm.NoseTip.X = 0.42 }, true},
		{PromptTurnLeft, func(lm *Landmarks) { lm.NoseTip.X = 0.48 }, false},
		{PromptTurnRight, func(lm *Landmarks) { lm.NoseTip.X = 0.58 }, true},
		{PromptTurnRight, nil, false},
		{PromptMouthOpen, func(lm *Landmarks) { lm.LowerLip.Y = lm.UpperLip.Y + 0.10 }, true},
		{PromptMouthOpen, nil, false},
		{PromptTiltUp, func(lm *Landmarks) { lm.NoseTip.Y = 0.40 }, true},
		{PromptTiltUp, nil, false},
		{PromptTiltDown, func(lm *Landmarks) { lm.NoseTip.Y = 0.60 }, true},
		{PromptTiltDown, nil, false},
	}

	for _, tt := range tests {
		lm := neutralFace()
		if tt.mutate != nil {
			tt.mutate(&lm)
		}
		p := findPrompt(t, tt.prompt)
		if got := p.Satisfied(lm); got != tt.want {
			t.Errorf("%s: satisfied=%v, want %v", tt.prompt, got, tt.want)
		}
	}
}

func grayFrame(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestSelectBestPicksBrightestFrame(t *testing.T) {
	frames := []image.Image{
		grayFrame(10), grayFrame(80), grayFrame(40), grayFrame(95), grayFrame(20),
	}
	_, idx, err := SelectBest(frames)
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if idx != 3 {
		t.Errorf("expected the fourth frame (index 3), got index %d", idx)
	}
}

func TestSelectBestEmpty(t *testing.T) {
	if _, _, err := SelectBest(nil); !errors.Is(err, ErrNoFrames) {
		t.Fatalf("expected ErrNoFrames, got %v", err)
	}
}

type fakeSource struct {
	mu         sync.Mutex
	acquireErr error
	captureErr error
	frames     []image.Image

	captures int
	releases int
}

func (f *fakeSource) Acquire(ctx context.Context) error { return f.acquireErr }

func (f *fakeSource) Capture(ctx context.Context) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	var img image.Image = grayFrame(50)
	if len(f.frames) > 0 {
		img = f.frames[f.captures%len(f.frames)]
	}
	f.captures++
	return img, nil
}

func (f *fakeSource) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeSource) stats() (captures, releases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captures, f.releases
}

func fastEngine(prompt Prompt) *Engine {
	return NewEngine(Config{
		Prompts:       []Prompt{prompt},
		Timeout:       200 * time.Millisecond,
		BurstSize:     5,
		BurstInterval: time.Millisecond,
		PollInterval:  time.Millisecond,
	})
}

func openMouth() Landmarks {
	lm := neutralFace()
	lm.LowerLip.Y = lm.UpperLip.Y + 0.10
	return lm
}

func TestSessionSuccessCapturesBurstAndSelectsBest(t *testing.T) {
	src := &fakeSource{frames: []image.Image{
		grayFrame(10), grayFrame(80), grayFrame(40), grayFrame(95), grayFrame(20),
	}}
	e := fastEngine(findPrompt(t, PromptMouthOpen))

	s, err := e.Start(context.Background(), src)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	s.Offer(neutralFace()) // does not satisfy
	s.Offer(openMouth())   // latest wins, satisfies

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session never finished")
	}

	if got := s.State(); got != StateDone {
		t.Fatalf("expected Done, got %s", got)
	}
	best, err := s.Result()
	if err != nil {
		t.Fatalf("result failed: %v", err)
	}
	if r, _, _, _ := best.At(0, 0).RGBA(); uint8(r>>8) != 95 {
		t.Errorf("expected the brightest burst frame, got pixel value %d", r>>8)
	}

	captures, releases := src.stats()
	if captures != 5 {
		t.Errorf("expected a burst of 5 captures, got %d", captures)
	}
	if releases != 1 {
		t.Errorf("capture device must be released exactly once, got %d", releases)
	}
}

func TestSessionTimeoutThenLateFrameIgnored(t *testing.T) {
	src := &fakeSource{}
	e := NewEngine(Config{
		Prompts:      []Prompt{findPrompt(t, PromptMouthOpen)},
		Timeout:      20 * time.Millisecond,
		PollInterval: time.Millisecond,
	})

	s, err := e.Start(context.Background(), src)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session never timed out")
	}

	if got := s.State(); got != StateTimedOut {
		t.Fatalf("expected TimedOut, got %s", got)
	}

	// A satisfying frame after the deadline must change nothing.
	s.Offer(openMouth())
	time.Sleep(10 * time.Millisecond)

	if got := s.State(); got != StateTimedOut {
		t.Errorf("late frame revived a timed-out session: %s", got)
	}
	if _, err := s.Result(); !errors.Is(err, ErrTimedOut) {
		t.Errorf("expected ErrTimedOut, got %v", err)
	}
	captures, releases := src.stats()
	if captures != 0 {
		t.Errorf("timed-out session must not capture, got %d frames", captures)
	}
	if releases != 1 {
		t.Errorf("capture device must be released exactly once, got %d", releases)
	}
}

func TestStartFailsWhenDeviceUnavailable(t *testing.T) {
	src := &fakeSource{acquireErr: errors.New("camera busy")}
	e := fastEngine(findPrompt(t, PromptBlink))

	if _, err := e.Start(context.Background(), src); err == nil {
		t.Fatalf("expected acquisition failure to abort the session")
	}
}

func TestCaptureFailureIsFatal(t *testing.T) {
	src := &fakeSource{captureErr: errors.New("device wedged")}
	e := fastEngine(findPrompt(t, PromptMouthOpen))

	s, err := e.Start(context.Background(), src)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.Offer(openMouth())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session never finished")
	}

	if _, err := s.Result(); err == nil {
		t.Fatalf("expected capture failure to surface")
	}
	if _, releases := src.stats(); releases != 1 {
		t.Errorf("capture device must be released exactly once, got %d", releases)
	}
}

// guardedSource flags any device use after Release, which must never happen
// however teardown races with an in-flight burst.
type guardedSource struct {
	mu                   sync.Mutex
	released             bool
	capturesAfterRelease int
}

func (g *guardedSource) Acquire(ctx context.Context) error { return nil }

func (g *guardedSource) Capture(ctx context.Context) (image.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		g.capturesAfterRelease++
	}
	return grayFrame(50), nil
}

func (g *guardedSource) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released = true
	return nil
}

func (g *guardedSource) violations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capturesAfterRelease
}

func TestCancelDuringSuccessNeverTouchesReleasedDevice(t *testing.T) {
	e := fastEngine(findPrompt(t, PromptMouthOpen))

	for i := 0; i < 500; i++ {
		src := &guardedSource{}
		s, err := e.Start(context.Background(), src)
		if err != nil {
			t.Fatalf("start failed: %v", err)
		}

		// Satisfy the prompt and cancel immediately, racing teardown against
		// the poll loop entering the capture burst.
		s.Offer(openMouth())
		s.Cancel()

		select {
		case <-s.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("canceled session never finished")
		}

		if n := src.violations(); n != 0 {
			t.Fatalf("device captured %d times after Release", n)
		}
		switch got := s.State(); got {
		case StateDone, StateCancelled:
		default:
			t.Fatalf("expected a terminal state after teardown, got %s", got)
		}
	}
}

func TestCancelTearsDownOnce(t *testing.T) {
	src := &fakeSource{}
	e := fastEngine(findPrompt(t, PromptBlink))

	s, err := e.Start(context.Background(), src)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	s.Cancel()
	s.Cancel() // second cancel must be a no-op

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("canceled session never finished")
	}

	if _, releases := src.stats(); releases != 1 {
		t.Errorf("capture device must be released exactly once, got %d", releases)
	}
}
