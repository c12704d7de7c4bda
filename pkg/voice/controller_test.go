package voice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	started  chan struct{}
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{started: make(chan struct{}, 16)}
}

func (r *fakeRecognizer) Start() error {
	r.mu.Lock()
	r.starts++
	err := r.startErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case r.started <- struct{}{}:
	default:
	}
	return nil
}

func (r *fakeRecognizer) Stop() {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
}

func (r *fakeRecognizer) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// fakeSpeaker completes every utterance immediately unless hold is set.
type fakeSpeaker struct {
	mu       sync.Mutex
	spoken   []string
	speakErr error
	hold     bool
	held     chan struct{}
	utter    chan string
	cancels  int
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{utter: make(chan string, 16)}
}

func (s *fakeSpeaker) Speak(text string) (<-chan struct{}, error) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	err := s.speakErr
	hold := s.hold
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.utter <- text
	if hold {
		ch := make(chan struct{})
		s.mu.Lock()
		s.held = ch
		s.mu.Unlock()
		return ch, nil
	}
	ch := make(chan struct{})
	close(ch)
	return ch, nil
}

func (s *fakeSpeaker) Cancel() {
	s.mu.Lock()
	s.cancels++
	if s.held != nil {
		close(s.held)
		s.held = nil
	}
	s.mu.Unlock()
}

type fakeDispatcher struct {
	mu    sync.Mutex
	reply string
	err   error
	block chan struct{}
	calls chan string
}

func newFakeDispatcher(reply string) *fakeDispatcher {
	return &fakeDispatcher{reply: reply, calls: make(chan string, 16)}
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, command string) (string, error) {
	d.calls <- command
	d.mu.Lock()
	block := d.block
	d.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return d.reply, d.err
}

type recordSink struct {
	mu      sync.Mutex
	states  []Snapshot
	replies []string
	notices []string
	stateCh chan Snapshot
}

func newRecordSink() *recordSink {
	return &recordSink{stateCh: make(chan Snapshot, 64)}
}

func (s *recordSink) StateChanged(snap Snapshot) {
	s.mu.Lock()
	s.states = append(s.states, snap)
	s.mu.Unlock()
	select {
	case s.stateCh <- snap:
	default:
	}
}

func (s *recordSink) Reply(text string) {
	s.mu.Lock()
	s.replies = append(s.replies, text)
	s.mu.Unlock()
}

func (s *recordSink) Notice(text string) {
	s.mu.Lock()
	s.notices = append(s.notices, text)
	s.mu.Unlock()
}

func (s *recordSink) lastNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		return ""
	}
	return s.notices[len(s.notices)-1]
}

func testConfig() Config {
	return Config{
		WakeWord:            "Yusra",
		AutoSpeak:           true,
		ConversationTimeout: 20 * time.Second,
		RestartDelay:        time.Millisecond,
	}
}

func waitUtterance(t *testing.T, spk *fakeSpeaker, contains string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case text := <-spk.utter:
			if strings.Contains(text, contains) {
				return text
			}
		case <-deadline:
			t.Fatalf("no utterance containing %q", contains)
		}
	}
}

func waitState(t *testing.T, sink *recordSink, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-sink.stateCh:
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("state never reached")
		}
	}
}

func startLive(t *testing.T, cfg Config, rec *fakeRecognizer, spk *fakeSpeaker, disp *fakeDispatcher, sink *recordSink) *Controller {
	t.Helper()
	c, err := NewController(cfg, rec, spk, disp, sink)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(c.Close)
	c.ToggleLive(true)
	waitUtterance(t, spk, "Live mode activated")
	select {
	case <-rec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("recognition never started")
	}
	return c
}

func TestToggleOnAnnouncesThenListens(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("")
	sink := newRecordSink()

	startLive(t, testConfig(), rec, spk, disp, sink)

	waitState(t, sink, func(s Snapshot) bool {
		return s.State == StateStandby && s.Listening
	})
}

func TestWakeWithCommandDispatches(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("Sunny and mild.")
	sink := newRecordSink()

	c := startLive(t, testConfig(), rec, spk, disp, sink)

	c.HandleResult("Hi Yusra what's the weather")

	select {
	case cmd := <-disp.calls:
		if cmd != "what's the weather" {
			t.Fatalf("dispatched %q, want stripped command", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never dispatched")
	}

	waitUtterance(t, spk, "Sunny and mild.")

	sink.mu.Lock()
	replies := append([]string(nil), sink.replies...)
	sink.mu.Unlock()
	if len(replies) != 1 || replies[0] != "Sunny and mild." {
		t.Fatalf("replies = %v", replies)
	}
}

func TestBareWakeWordAcknowledgesWithoutDispatch(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("never")
	sink := newRecordSink()

	c := startLive(t, testConfig(), rec, spk, disp, sink)

	c.HandleResult("Yusra")

	waitUtterance(t, spk, "I'm listening")
	waitState(t, sink, func(s Snapshot) bool { return s.ConversationActive })

	select {
	case cmd := <-disp.calls:
		t.Fatalf("unexpected dispatch of %q", cmd)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnmatchedUtteranceIsIgnored(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("never")
	sink := newRecordSink()

	c := startLive(t, testConfig(), rec, spk, disp, sink)
	before := rec.startCount()

	c.HandleResult("hello world")

	// Recognition re-arms; nothing else changes.
	select {
	case <-rec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("recognition never restarted")
	}
	if rec.startCount() <= before {
		t.Fatal("expected a new recognition cycle")
	}
	select {
	case cmd := <-disp.calls:
		t.Fatalf("unexpected dispatch of %q", cmd)
	case <-time.After(100 * time.Millisecond):
	}
	sink.mu.Lock()
	for _, s := range sink.states {
		if s.ConversationActive {
			t.Fatal("conversation must not activate")
		}
	}
	sink.mu.Unlock()
}

func TestStopWordReturnsToStandby(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("never")
	sink := newRecordSink()

	c := startLive(t, testConfig(), rec, spk, disp, sink)

	c.HandleResult("Yusra")
	waitState(t, sink, func(s Snapshot) bool { return s.ConversationActive })

	// Punctuation from the recognizer must not defeat the stop word.
	c.HandleResult("stop.")

	waitUtterance(t, spk, "Goodbye")
	waitState(t, sink, func(s Snapshot) bool {
		return !s.ConversationActive && s.State != StateOff
	})

	select {
	case cmd := <-disp.calls:
		t.Fatalf("stop word dispatched as %q", cmd)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConversationTimeoutFiresExactlyOnce(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("never")
	sink := newRecordSink()

	cfg := testConfig()
	cfg.ConversationTimeout = 60 * time.Millisecond
	c := startLive(t, cfg, rec, spk, disp, sink)

	c.HandleResult("Yusra")
	waitUtterance(t, spk, "I'm listening")

	waitUtterance(t, spk, "No activity detected")
	waitState(t, sink, func(s Snapshot) bool { return !s.ConversationActive })

	// Well past another timeout window: no second standby announcement.
	time.Sleep(200 * time.Millisecond)
	spk.mu.Lock()
	count := 0
	for _, text := range spk.spoken {
		if strings.Contains(text, "No activity detected") {
			count++
		}
	}
	spk.mu.Unlock()
	if count != 1 {
		t.Fatalf("standby announcements = %d, want exactly 1", count)
	}
}

func TestTimeoutDefersWhileDispatching(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("done")
	disp.block = make(chan struct{})
	sink := newRecordSink()

	cfg := testConfig()
	cfg.ConversationTimeout = 40 * time.Millisecond
	c := startLive(t, cfg, rec, spk, disp, sink)

	c.HandleResult("Hi Yusra tell me a long story")
	<-disp.calls

	// Timeout elapses while the dispatch is still running; the controller
	// must not announce standby mid-turn.
	time.Sleep(120 * time.Millisecond)
	spk.mu.Lock()
	for _, text := range spk.spoken {
		if strings.Contains(text, "No activity detected") {
			t.Fatal("standby announced during dispatch")
		}
	}
	spk.mu.Unlock()

	close(disp.block)
	waitUtterance(t, spk, "done")
}

func TestRecognizerErrorWhileBusyDoesNotRestart(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("done")
	disp.block = make(chan struct{})
	sink := newRecordSink()

	c := startLive(t, testConfig(), rec, spk, disp, sink)

	c.HandleResult("Hi Yusra do something")
	<-disp.calls
	before := rec.startCount()

	c.HandleError(errors.New("no-speech"))
	time.Sleep(50 * time.Millisecond)
	if rec.startCount() != before {
		t.Fatal("recognition restarted while dispatching")
	}

	close(disp.block)
	waitUtterance(t, spk, "done")
}

func TestUtteranceWhileDispatchingIsDropped(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("done")
	disp.block = make(chan struct{})
	sink := newRecordSink()

	c := startLive(t, testConfig(), rec, spk, disp, sink)

	c.HandleResult("Hi Yusra tell me a long story")
	<-disp.calls
	before := rec.startCount()

	// A stray transcript mid-turn must not start a second dispatch, and its
	// handling must not re-arm recognition while the first turn runs.
	c.HandleResult("and another thing")
	time.Sleep(50 * time.Millisecond)
	select {
	case cmd := <-disp.calls:
		t.Fatalf("second dispatch of %q while busy", cmd)
	default:
	}
	if rec.startCount() != before {
		t.Fatal("recognition restarted while dispatching")
	}

	close(disp.block)
	waitUtterance(t, spk, "done")
}

func TestManualResultBypassesWakeGate(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("ok")
	sink := newRecordSink()

	c := startLive(t, testConfig(), rec, spk, disp, sink)

	c.ManualResult("turn on the lights")
	select {
	case cmd := <-disp.calls:
		if cmd != "turn on the lights" {
			t.Fatalf("dispatched %q", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("manual result never dispatched")
	}
}

func TestRecognizerStartFailureDisablesVoiceOnly(t *testing.T) {
	rec := newFakeRecognizer()
	rec.startErr = errors.New("not allowed")
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("ok")
	sink := newRecordSink()

	c, err := NewController(testConfig(), rec, spk, disp, sink)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(c.Close)

	c.ToggleLive(true)
	waitUtterance(t, spk, "Live mode activated")

	deadline := time.Now().Add(2 * time.Second)
	for sink.lastNotice() == "" {
		if time.Now().After(deadline) {
			t.Fatal("no notice about unavailable recognition")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !strings.Contains(sink.lastNotice(), "not available") {
		t.Fatalf("notice = %q", sink.lastNotice())
	}

	// Manual dispatch still works without recognition.
	c.ManualResult("still works")
	select {
	case <-disp.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("manual dispatch broken after recognizer failure")
	}
}

func TestToggleOffShutsDown(t *testing.T) {
	rec := newFakeRecognizer()
	spk := newFakeSpeaker()
	disp := newFakeDispatcher("ok")
	sink := newRecordSink()

	c := startLive(t, testConfig(), rec, spk, disp, sink)

	c.ToggleLive(false)
	waitState(t, sink, func(s Snapshot) bool { return s.State == StateOff })

	rec.mu.Lock()
	stops := rec.stops
	rec.mu.Unlock()
	if stops == 0 {
		t.Fatal("recognizer never stopped")
	}
	spk.mu.Lock()
	cancels := spk.cancels
	spk.mu.Unlock()
	if cancels == 0 {
		t.Fatal("speech never cancelled")
	}
}
