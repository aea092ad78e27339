// Package browser creates isolated, stealth-configured Chrome sessions and
// implements the page operations the navigator drives.
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Selectors on the registry's project view page.
const (
	ChallengeSelector = "canvas#captcahCanvas"
	InputSelector     = "input[name='captcha']"
	SubmitSelector    = "button.btn.btn-primary.next"
	DetailSelector    = "div.form-card"
)

const startupTimeout = 30 * time.Second

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("browser session closed")

// Factory creates sessions. It is safe for concurrent use.
type Factory struct {
	cfg     config.BrowserConfig
	submit  time.Duration
	limiter *rate.Limiter
	logger  *logrus.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewFactory creates a session factory. submitTimeout bounds the wait for the
// detail page after a challenge submission.
func NewFactory(cfg config.BrowserConfig, submitTimeout time.Duration, logger *logrus.Logger) *Factory {
	f := &Factory{
		cfg:    cfg,
		submit: submitTimeout,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.NavigationRPS > 0 {
		// Shared by every session so pacing is global.
		f.limiter = rate.NewLimiter(rate.Limit(cfg.NavigationRPS), 1)
	}
	return f
}

func (f *Factory) identity() Identity {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return RandomIdentity(f.rng)
}

// Session is one isolated browser with a single tab. Operations must not be
// called concurrently; Close may be called from anywhere.
type Session struct {
	id       string
	identity Identity
	cfg      config.BrowserConfig
	submit   time.Duration
	limiter  *rate.Limiter
	logger   *logrus.Entry

	ctx     context.Context
	cancels []context.CancelFunc
	life    *lifecycle
	blocked atomic.Int64
	counted atomic.Bool

	closeOnce sync.Once
}

// NewSession launches a fresh browser with its own profile directory.
func (f *Factory) NewSession(ctx context.Context) (*Session, error) {
	id := f.identity()
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(id, f.cfg.Headless, f.cfg.ExecPath)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:       "session-" + uuid.NewString()[:8],
		identity: id,
		cfg:      f.cfg,
		submit:   f.submit,
		limiter:  f.limiter,
		ctx:      browserCtx,
		cancels:  []context.CancelFunc{browserCancel, allocCancel},
		life:     newLifecycle(),
	}
	s.logger = f.logger.WithFields(logrus.Fields{"session_id": s.id})

	// The first Run allocates the browser and must use the long-lived context,
	// otherwise the browser dies with the first timeout.
	if err := chromedp.Run(browserCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	s.listen()

	setup := chromedp.Tasks{
		network.Enable(),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		emulation.SetUserAgentOverride(id.UserAgent).
			WithAcceptLanguage("en-US,en;q=0.9").
			WithPlatform(id.Platform),
	}
	if f.cfg.BlockResources {
		setup = append(setup, fetch.Enable())
	}

	if err := s.run(ctx, startupTimeout, setup); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser session: %w", err)
	}

	metrics.IncActiveSessions()
	s.counted.Store(true)
	s.logger.WithFields(logrus.Fields{
		"user_agent": id.UserAgent,
		"viewport":   fmt.Sprintf("%dx%d", id.Width, id.Height),
		"blocking":   f.cfg.BlockResources,
	}).Debug("Browser session created")
	return s, nil
}

// listen wires request interception and page lifecycle tracking.
func (s *Session) listen() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go s.handlePaused(e)
		case *page.EventLifecycleEvent:
			s.life.event(e.FrameID, e.LoaderID, e.Name)
		}
	})
}

// handlePaused runs on its own goroutine; CDP calls may not block the event loop.
func (s *Session) handlePaused(ev *fetch.EventRequestPaused) {
	cmdCtx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()

	c := chromedp.FromContext(cmdCtx)
	if c == nil || c.Target == nil {
		return
	}
	exec := cdp.WithExecutor(cmdCtx, c.Target)

	if shouldBlock(ev.ResourceType) {
		s.blocked.Add(1)
		if err := fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(exec); err != nil && cmdCtx.Err() == nil {
			s.logger.WithError(err).WithField("url", ev.Request.URL).Debug("Failed to block request")
		}
		return
	}
	if err := fetch.ContinueRequest(ev.RequestID).Do(exec); err != nil && cmdCtx.Err() == nil {
		s.logger.WithError(err).WithField("url", ev.Request.URL).Debug("Failed to continue request, failing instead")
		_ = fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted).Do(exec)
	}
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Identity returns the fingerprint this session presents.
func (s *Session) Identity() Identity { return s.identity }

// Blocked returns how many requests interception has aborted.
func (s *Session) Blocked() int64 { return s.blocked.Load() }

// Navigate loads url and waits for the document to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, loader, errText, _, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return fmt.Errorf("navigate %s: %s", url, errText)
			}
			s.life.navigated(frame, loader)
			return nil
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// CaptureChallenge returns the challenge canvas as PNG bytes.
func (s *Session) CaptureChallenge(ctx context.Context) ([]byte, error) {
	var dataURL string
	err := s.run(ctx, s.cfg.ContainerTimeout,
		chromedp.WaitVisible(ChallengeSelector, chromedp.ByQuery),
		chromedp.Evaluate(`document.querySelector("`+ChallengeSelector+`").toDataURL("image/png")`, &dataURL),
	)
	if err == nil {
		if data, derr := decodeDataURL(dataURL); derr == nil {
			return data, nil
		}
	} else if ctx.Err() != nil {
		return nil, err
	}

	// A tainted or empty canvas cannot be exported; fall back to a screenshot.
	var shot []byte
	if err := s.run(ctx, s.cfg.ContainerTimeout,
		chromedp.Screenshot(ChallengeSelector, &shot, chromedp.NodeVisible, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("capture challenge: %w", err)
	}
	return shot, nil
}

// SubmitChallenge types the token into the challenge input and submits it.
func (s *Session) SubmitChallenge(ctx context.Context, token string) error {
	return s.run(ctx, s.cfg.ContainerTimeout,
		chromedp.WaitVisible(InputSelector, chromedp.ByQuery),
		chromedp.SetValue(InputSelector, "", chromedp.ByQuery),
		chromedp.SendKeys(InputSelector, token, chromedp.ByQuery),
		chromedp.Click(SubmitSelector, chromedp.ByQuery, chromedp.NodeVisible),
	)
}

// ChallengeAccepted waits for the detail container after a submission.
// A page still showing the challenge when the wait ends was rejected.
func (s *Session) ChallengeAccepted(ctx context.Context) (bool, error) {
	err := s.run(ctx, s.submit, chromedp.WaitReady(DetailSelector, chromedp.ByQuery))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

// WaitStable waits for the document's networkIdle lifecycle event, a settling
// delay and the detail container.
func (s *Session) WaitStable(ctx context.Context) error {
	if err := s.life.waitIdle(ctx, s.cfg.NetworkIdleTimeout); err != nil {
		return err
	}

	if s.cfg.SettleDelay > 0 {
		t := time.NewTimer(s.cfg.SettleDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	return s.run(ctx, s.cfg.ContainerTimeout, chromedp.WaitReady(DetailSelector, chromedp.ByQuery))
}

// HTML returns the rendered document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.cfg.ContainerTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// Healthy reports whether the browser is still usable.
func (s *Session) Healthy() bool {
	return s.ctx.Err() == nil
}

// Close shuts the browser down. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
		if s.counted.Load() {
			metrics.DecActiveSessions()
		}
		s.logger.WithField("blocked_requests", s.blocked.Load()).Debug("Browser session closed")
	})
	return nil
}

func decodeDataURL(dataURL string) ([]byte, error) {
	_, payload, ok := strings.Cut(dataURL, ";base64,")
	if !ok || payload == "" {
		return nil, errors.New("not a base64 data url")
	}
	return base64.StdEncoding.DecodeString(payload)
}
