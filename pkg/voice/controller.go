package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// State is the controller's coarse protocol state.
type State string

const (
	StateOff             State = "off"
	StateStandby         State = "standby"
	StateActiveListening State = "active_listening"
	StateDispatching     State = "dispatching"
	StateSpeaking        State = "speaking"
)

// Recognizer is the speech-recognition resource: non-continuous, one
// utterance per activation. Its result/error/end events are fed back into
// the controller by the owner of the underlying resource.
type Recognizer interface {
	// Start begins one utterance capture. An error is terminal for the
	// voice feature (no support, no permission).
	Start() error
	Stop()
}

// Speaker is the speech-synthesis resource. Speak returns a channel closed
// when playback completes, or nil when the resource cannot report
// completion; the controller then falls back to a length-based estimate.
type Speaker interface {
	Speak(text string) (done <-chan struct{}, err error)
	Cancel()
}

// Dispatcher routes a recognized command into the conversation session
// manager, exactly as a manual text submission would.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string) (reply string, err error)
}

// Sink observes controller output for the UI. All methods may be called
// from the controller goroutine; implementations must not block.
type Sink interface {
	StateChanged(s Snapshot)
	Reply(text string)
	Notice(text string)
}

// Snapshot is the externally visible controller state.
type Snapshot struct {
	State              State `json:"state"`
	LiveMode           bool  `json:"liveMode"`
	ConversationActive bool  `json:"conversationActive"`
	Listening          bool  `json:"listening"`
	Speaking           bool  `json:"speaking"`
	AIBusy             bool  `json:"aiBusy"`
}

// Config wires a Controller.
type Config struct {
	WakeWord  string
	AutoSpeak bool
	Logger    *slog.Logger

	// ConversationTimeout is the active-conversation inactivity window
	// before the controller drops back to standby.
	ConversationTimeout time.Duration
	// RestartDelay is the pause before re-arming recognition after an
	// utterance, a recognizer error, or the end of speech output.
	RestartDelay time.Duration
	// DispatchTimeout bounds a single command dispatch.
	DispatchTimeout time.Duration
}

type eventKind int

const (
	evToggle eventKind = iota
	evResult
	evRecError
	evRecEnd
	evManual
	evDispatchDone
)

type event struct {
	kind eventKind
	on   bool
	text string
	err  error
}

// Controller is the voice interaction state machine. A single goroutine
// owns every flag and timer; recognizer events, dispatch completions, and
// timers are all funneled through one select loop, so callbacks never race
// on shared state.
type Controller struct {
	cfg    Config
	wake   *WakeMatcher
	rec    Recognizer
	spk    Speaker
	disp   Dispatcher
	sink   Sink
	logger *slog.Logger

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController builds a Controller. Recognizer, Speaker, and Dispatcher
// are required; Sink is optional.
func NewController(cfg Config, rec Recognizer, spk Speaker, disp Dispatcher, sink Sink) (*Controller, error) {
	if rec == nil {
		return nil, fmt.Errorf("voice: recognizer is required")
	}
	if spk == nil {
		return nil, fmt.Errorf("voice: speaker is required")
	}
	if disp == nil {
		return nil, fmt.Errorf("voice: dispatcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConversationTimeout <= 0 {
		cfg.ConversationTimeout = 20 * time.Second
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 400 * time.Millisecond
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:    cfg,
		wake:   NewWakeMatcher(cfg.WakeWord),
		rec:    rec,
		spk:    spk,
		disp:   disp,
		sink:   sink,
		logger: cfg.Logger,
		events: make(chan event, 16),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// Close stops the controller loop and releases the speech resources.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}

// ToggleLive turns live (hands-free) mode on or off.
func (c *Controller) ToggleLive(on bool) { c.post(event{kind: evToggle, on: on}) }

// HandleResult feeds a recognized utterance from the recognition resource.
func (c *Controller) HandleResult(transcript string) {
	c.post(event{kind: evResult, text: transcript})
}

// HandleError feeds a recognition error event.
func (c *Controller) HandleError(err error) { c.post(event{kind: evRecError, err: err}) }

// HandleEnd feeds a natural end-of-utterance event.
func (c *Controller) HandleEnd() { c.post(event{kind: evRecEnd}) }

// ManualResult forwards an explicitly captured transcript to dispatch,
// bypassing the wake-word gate.
func (c *Controller) ManualResult(transcript string) {
	c.post(event{kind: evManual, text: transcript})
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Controller) run() {
	defer close(c.done)

	var (
		liveMode           bool
		conversationActive bool
		listening          bool
		speaking           bool
		aiBusy             bool
		recDisabled        bool

		speakDoneCh <-chan struct{}

		convTimer     *time.Timer
		convActive    bool
		restartTimer  *time.Timer
		restartActive bool
		speakTimer    *time.Timer
		speakEstimate bool

		lastSent Snapshot
		sentAny  bool
	)

	stopTimer := func(t **time.Timer, active *bool) {
		if *t == nil {
			return
		}
		if !(*t).Stop() {
			select {
			case <-(*t).C:
			default:
			}
		}
		*active = false
	}
	resetTimer := func(t **time.Timer, active *bool, d time.Duration) {
		if *t == nil {
			*t = time.NewTimer(d)
			*active = true
			return
		}
		if !(*t).Stop() {
			select {
			case <-(*t).C:
			default:
			}
		}
		(*t).Reset(d)
		*active = true
	}
	timerCh := func(t *time.Timer, active bool) <-chan time.Time {
		if !active || t == nil {
			return nil
		}
		return t.C
	}

	state := func() State {
		switch {
		case !liveMode:
			return StateOff
		case aiBusy:
			return StateDispatching
		case speaking:
			return StateSpeaking
		case conversationActive:
			return StateActiveListening
		default:
			return StateStandby
		}
	}
	notify := func() {
		snap := Snapshot{
			State:              state(),
			LiveMode:           liveMode,
			ConversationActive: conversationActive,
			Listening:          listening,
			Speaking:           speaking,
			AIBusy:             aiBusy,
		}
		if sentAny && snap == lastSent {
			return
		}
		lastSent = snap
		sentAny = true
		if c.sink != nil {
			c.sink.StateChanged(snap)
		}
	}

	startListening := func() {
		if !liveMode || recDisabled || listening || speaking || aiBusy {
			return
		}
		if err := c.rec.Start(); err != nil {
			// Terminal for the voice feature only: one notice, then the
			// feature stays disabled while the rest of the app keeps working.
			recDisabled = true
			c.logger.Warn("speech recognition unavailable", "error", err)
			if c.sink != nil {
				c.sink.Notice("Voice recognition is not available on this device.")
			}
			return
		}
		listening = true
	}
	scheduleRestart := func(d time.Duration) {
		if !liveMode || recDisabled {
			return
		}
		resetTimer(&restartTimer, &restartActive, d)
	}
	speak := func(text string) {
		if text == "" {
			return
		}
		ch, err := c.spk.Speak(text)
		if err != nil {
			// Degraded no-audio mode: the text stays visible, recognition
			// resumes as if the utterance had played.
			c.logger.Warn("speech synthesis failed", "error", err)
			scheduleRestart(c.cfg.RestartDelay)
			return
		}
		speaking = true
		if ch != nil {
			speakDoneCh = ch
			speakEstimate = false
		} else {
			resetTimer(&speakTimer, &speakEstimate, estimateSpeakDuration(text))
		}
	}
	finishSpeak := func() {
		speaking = false
		speakDoneCh = nil
		stopTimer(&speakTimer, &speakEstimate)
		scheduleRestart(c.cfg.RestartDelay)
		notify()
	}
	dispatch := func(command string) {
		aiBusy = true
		if conversationActive {
			resetTimer(&convTimer, &convActive, c.cfg.ConversationTimeout)
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DispatchTimeout)
			defer cancel()
			reply, err := c.disp.Dispatch(ctx, command)
			c.post(event{kind: evDispatchDone, text: reply, err: err})
		}()
	}
	shutdownLive := func() {
		c.spk.Cancel()
		if listening {
			c.rec.Stop()
			listening = false
		}
		speaking = false
		speakDoneCh = nil
		conversationActive = false
		stopTimer(&convTimer, &convActive)
		stopTimer(&restartTimer, &restartActive)
		stopTimer(&speakTimer, &speakEstimate)
	}

	for {
		select {
		case <-c.ctx.Done():
			shutdownLive()
			return

		case <-timerCh(convTimer, convActive):
			convActive = false
			if !conversationActive {
				continue
			}
			if aiBusy || speaking {
				// Not in active listening right now; defer the standby
				// decision until the turn settles.
				resetTimer(&convTimer, &convActive, c.cfg.ConversationTimeout)
				continue
			}
			conversationActive = false
			if listening {
				c.rec.Stop()
				listening = false
			}
			speak("No activity detected. Returning to standby.")
			notify()

		case <-timerCh(restartTimer, restartActive):
			restartActive = false
			startListening()
			notify()

		case <-timerCh(speakTimer, speakEstimate):
			speakEstimate = false
			finishSpeak()

		case <-speakDoneCh:
			finishSpeak()

		case ev := <-c.events:
			switch ev.kind {
			case evToggle:
				if ev.on == liveMode {
					continue
				}
				liveMode = ev.on
				if liveMode {
					speak(fmt.Sprintf("Live mode activated. Say 'Hi %s' to begin.", c.wakeWord()))
					if !speaking {
						startListening()
					}
				} else {
					shutdownLive()
				}
				notify()

			case evResult:
				listening = false
				transcript := strings.TrimSpace(ev.text)
				if !liveMode || transcript == "" {
					scheduleRestart(c.cfg.RestartDelay)
					continue
				}
				if aiBusy {
					// A turn is already in flight; a second dispatch would
					// fail fast on the session busy gate and its completion
					// would re-arm recognition mid-turn. Drop the utterance
					// and let the running turn drive the restart.
					continue
				}
				if !conversationActive {
					command, ok := c.wake.Match(transcript)
					if !ok {
						// Wake gate closed: ignore the utterance.
						scheduleRestart(c.cfg.RestartDelay)
						continue
					}
					conversationActive = true
					if meaningfulCommand(command) {
						dispatch(command)
					} else {
						resetTimer(&convTimer, &convActive, c.cfg.ConversationTimeout)
						speak("Yes? I'm listening.")
					}
					notify()
					continue
				}
				if IsStopWord(transcript) {
					conversationActive = false
					stopTimer(&convTimer, &convActive)
					speak("Goodbye. Returning to standby.")
					notify()
					continue
				}
				dispatch(transcript)
				notify()

			case evRecError, evRecEnd:
				listening = false
				if liveMode && !aiBusy && !speaking {
					scheduleRestart(c.cfg.RestartDelay)
				}
				notify()

			case evManual:
				transcript := strings.TrimSpace(ev.text)
				if transcript == "" || aiBusy {
					continue
				}
				dispatch(transcript)
				notify()

			case evDispatchDone:
				aiBusy = false
				if conversationActive {
					resetTimer(&convTimer, &convActive, c.cfg.ConversationTimeout)
				}
				if ev.err != nil {
					c.logger.Warn("dispatch failed", "error", ev.err)
					scheduleRestart(c.cfg.RestartDelay)
					notify()
					continue
				}
				if c.sink != nil && ev.text != "" {
					c.sink.Reply(ev.text)
				}
				if liveMode && c.cfg.AutoSpeak && ev.text != "" {
					speak(ev.text)
				} else if liveMode {
					scheduleRestart(c.cfg.RestartDelay)
				}
				notify()
			}
		}
	}
}

func (c *Controller) wakeWord() string {
	if w := strings.TrimSpace(c.cfg.WakeWord); w != "" {
		return w
	}
	return DefaultWakeWord
}

// estimateSpeakDuration approximates synthesis playback time from text
// length. Only a portability fallback: the Speaker's own completion event
// is preferred whenever it can provide one.
func estimateSpeakDuration(text string) time.Duration {
	d := 800*time.Millisecond + time.Duration(len([]rune(text)))*60*time.Millisecond
	if d < time.Second {
		d = time.Second
	}
	if d > 45*time.Second {
		d = 45 * time.Second
	}
	return d
}
