package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const (
	defaultWebURL       = "https://web.whatsapp.com"
	defaultPollInterval = time.Second
	maxProbeFailures    = 10
	eventBuffer         = 64
	pageCallTimeout     = 10 * time.Second
)

var sessionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// RodConfig holds browser configuration.
type RodConfig struct {
	BrowserBin   string
	Headless     bool
	DataDir      string // one Chrome profile per session lives below this
	PollInterval time.Duration
	URL          string
	UserAgent    string
}

func (c RodConfig) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return defaultPollInterval
	}
	return c.PollInterval
}

func (c RodConfig) webURL() string {
	if c.URL == "" {
		return defaultWebURL
	}
	return c.URL
}

// RodProvider drives WhatsApp Web in a dedicated Chrome per session. The
// profile directory keeps the pairing across restarts.
type RodProvider struct {
	cfg RodConfig
	log zerolog.Logger
}

// NewRodProvider creates a browser-backed provider
func NewRodProvider(cfg RodConfig, logger zerolog.Logger) *RodProvider {
	return &RodProvider{
		cfg: cfg,
		log: logger.With().Str("component", "rod").Logger(),
	}
}

// Acquire returns an inactive handle; nothing is launched until Initialize
func (p *RodProvider) Acquire(ctx context.Context, sessionName string) (Handle, error) {
	if !sessionNamePattern.MatchString(sessionName) {
		return nil, fmt.Errorf("invalid session name %q", sessionName)
	}
	pollCtx, cancelPoll := context.WithCancel(context.Background())
	return &rodHandle{
		name:       sessionName,
		cfg:        p.cfg,
		log:        p.log.With().Str("session", sessionName).Logger(),
		events:     make(chan Event, eventBuffer),
		stop:       make(chan struct{}),
		pollCtx:    pollCtx,
		cancelPoll: cancelPoll,
	}, nil
}

type rodHandle struct {
	name string
	cfg  RodConfig
	log  zerolog.Logger

	events     chan Event
	closeEvent sync.Once

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	polling  bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// pollCtx bounds every page call the poller makes; Destroy cancels it
	pollCtx    context.Context
	cancelPoll context.CancelFunc
}

// evalFunc runs a page script and decodes its JSON result into out
type evalFunc func(ctx context.Context, js string, out interface{}) error

func (h *rodHandle) Events() <-chan Event {
	return h.events
}

func (h *rodHandle) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browser != nil {
		return nil
	}

	l := launcher.New().
		Headless(h.cfg.Headless).
		UserDataDir(filepath.Join(h.cfg.DataDir, h.name))
	if h.cfg.BrowserBin != "" {
		l = l.Bin(h.cfg.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: h.cfg.webURL()})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return fmt.Errorf("open web client: %w", err)
	}
	if h.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: h.cfg.UserAgent}); err != nil {
			h.log.Warn().Err(err).Msg("failed to set user agent")
		}
	}

	h.launcher = l
	h.browser = browser
	h.page = page
	h.startPollingLocked(func(ctx context.Context, js string, out interface{}) error {
		return evalJSON(ctx, page, js, out)
	})

	h.log.Info().Msg("web client launched")
	return nil
}

type probeResult struct {
	State    string    `json:"state"`
	QR       string    `json:"qr"`
	Messages []Message `json:"messages"`
}

// startPollingLocked starts the poller; h.mu must be held
func (h *rodHandle) startPollingLocked(eval evalFunc) {
	h.polling = true
	h.wg.Add(1)
	go h.poll(eval)
}

// pageCall runs one page script under pageCallTimeout
func (h *rodHandle) pageCall(eval evalFunc, js string, out interface{}) error {
	ctx, cancel := context.WithTimeout(h.pollCtx, pageCallTimeout)
	defer cancel()
	return eval(ctx, js, out)
}

// poll is the only sender on h.events
func (h *rodHandle) poll(eval evalFunc) {
	defer h.wg.Done()
	defer h.closeEvents()

	ticker := time.NewTicker(h.cfg.pollInterval())
	defer ticker.Stop()

	var (
		lastQR   string
		ready    bool
		failures int
	)

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}

		var state probeResult
		if err := h.pageCall(eval, probeJS, &state); err != nil {
			if h.pollCtx.Err() != nil {
				return
			}
			failures++
			h.log.Debug().Err(err).Int("failures", failures).Msg("probe failed")
			if failures >= maxProbeFailures {
				h.emit(Event{Type: EventDisconnected, Reason: "web client unreachable: " + err.Error()})
				return
			}
			continue
		}
		failures = 0

		switch state.State {
		case "qr":
			if state.QR != "" && state.QR != lastQR {
				lastQR = state.QR
				h.emit(Event{Type: EventQR, QR: state.QR})
			}
		case "app":
			var installed string
			if err := h.pageCall(eval, bootstrapJS, &installed); err != nil || installed != "true" {
				h.log.Debug().Err(err).Msg("web client modules not ready yet")
			}
		case "ready":
			if !ready {
				ready = true
				h.emit(Event{Type: EventReady})
			}
			for i := range state.Messages {
				msg := state.Messages[i]
				h.emit(Event{Type: EventMessage, Message: &msg})
			}
		case "logged_out":
			h.emit(Event{Type: EventDisconnected, Reason: "logged out"})
			return
		}
	}
}

func (h *rodHandle) emit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.stop:
	}
}

func (h *rodHandle) closeEvents() {
	h.closeEvent.Do(func() { close(h.events) })
}

func (h *rodHandle) readyPage() (*rod.Page, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.page == nil {
		return nil, ErrNotReady
	}
	return h.page, nil
}

func (h *rodHandle) SendText(ctx context.Context, chatID, text string) (*Message, error) {
	page, err := h.readyPage()
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := evalJSON(ctx, page, sendTextJS, &msg, chatID, text); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

func (h *rodHandle) FetchMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	page, err := h.readyPage()
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := evalJSON(ctx, page, fetchMessagesJS, &msgs, chatID, limit); err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", chatID, err)
	}
	return msgs, nil
}

func (h *rodHandle) Chats(ctx context.Context) ([]Chat, error) {
	page, err := h.readyPage()
	if err != nil {
		return nil, err
	}
	var chats []Chat
	if err := evalJSON(ctx, page, chatsJS, &chats); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

func (h *rodHandle) Logout(ctx context.Context) error {
	page, err := h.readyPage()
	if err != nil {
		return err
	}
	var done string
	return evalJSON(ctx, page, logoutJS, &done)
}

// Destroy stops polling and closes the browser. The profile directory is
// kept so a later start can reuse the pairing.
func (h *rodHandle) Destroy() error {
	h.stopOnce.Do(func() { close(h.stop) })
	h.cancelPoll()
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.polling {
		h.closeEvents()
	}

	var err error
	if h.browser != nil {
		err = h.browser.Close()
		h.browser = nil
	}
	if h.launcher != nil {
		h.launcher.Kill()
		h.launcher = nil
	}
	h.page = nil
	return err
}

// evalJSON runs a page script returning a JSON string and decodes it into out
func evalJSON(ctx context.Context, page *rod.Page, js string, out interface{}, args ...interface{}) error {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return err
	}
	if res == nil || res.Value.Nil() {
		return fmt.Errorf("script returned no value")
	}
	return decodeResult(res.Value.Str(), out)
}

func decodeResult(raw string, out interface{}) error {
	if s, ok := out.(*string); ok {
		*s = raw
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}
