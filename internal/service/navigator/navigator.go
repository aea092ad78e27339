// Package navigator drives one attempt at a project page: navigate, solve the
// challenge, wait for the detail page and extract it.
package navigator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/sirupsen/logrus"
)

// Page is the browser tab an attempt runs in.
type Page interface {
	Navigate(ctx context.Context, url string) error
	CaptureChallenge(ctx context.Context) ([]byte, error)
	SubmitChallenge(ctx context.Context, token string) error
	ChallengeAccepted(ctx context.Context) (bool, error)
	WaitStable(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
}

// Solver reads a challenge image.
type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// Extractor turns a detail page snapshot into a record.
type Extractor interface {
	Extract(ctx context.Context, projectID int, html string) (*models.ProjectRecord, error)
}

// Navigator runs attempts. It holds no per-attempt state and is safe for
// concurrent use with distinct pages.
type Navigator struct {
	urlFor      func(id int) string
	solver      Solver
	extractor   Extractor
	maxAttempts int
	retryDelay  time.Duration
	logger      *logrus.Logger
}

// New creates a navigator. urlFor maps a project ID to its page.
func New(urlFor func(id int) string, solver Solver, extractor Extractor, cfg config.CaptchaConfig, logger *logrus.Logger) *Navigator {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Navigator{
		urlFor:      urlFor,
		solver:      solver,
		extractor:   extractor,
		maxAttempts: maxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      logger,
	}
}

// URL returns the page address of a project.
func (n *Navigator) URL(id int) string { return n.urlFor(id) }

type attempt struct {
	n      *Navigator
	page   Page
	id     int
	url    string
	state  State
	logger *logrus.Entry
}

func (a *attempt) to(next State) {
	a.logger.WithFields(logrus.Fields{"from": a.state.String(), "to": next.String()}).Debug("State transition")
	a.state = next
}

func (a *attempt) fail(kind, cause error) error {
	a.logger.WithFields(logrus.Fields{"from": a.state.String(), "to": StateFailed.String()}).WithError(cause).Debug("State transition")
	return &AttemptError{ProjectID: a.id, State: a.state, Kind: kind, Err: cause}
}

// Run executes one attempt for projectID on page.
func (n *Navigator) Run(ctx context.Context, page Page, projectID int) (*models.ProjectRecord, error) {
	a := &attempt{
		n:     n,
		page:  page,
		id:    projectID,
		url:   n.urlFor(projectID),
		state: StateNavigating,
	}
	a.logger = n.logger.WithFields(logrus.Fields{
		"project_id": projectID,
		"attempt_id": uuid.NewString(),
	})
	start := time.Now()

	if err := page.Navigate(ctx, a.url); err != nil {
		return nil, a.fail(ErrNavigation, err)
	}

	a.to(StateChallengePending)
	if err := a.solveChallenge(ctx); err != nil {
		return nil, err
	}

	a.to(StateChallengeSolved)
	if err := page.WaitStable(ctx); err != nil {
		return nil, a.fail(ErrRenderTimeout, err)
	}

	a.to(StateRenderStable)
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, a.fail(ErrRenderTimeout, err)
	}

	a.to(StateExtracting)
	record, err := n.extractor.Extract(ctx, projectID, html)
	if err != nil {
		return nil, a.fail(ErrExtraction, err)
	}

	a.to(StateDone)
	a.logger.WithFields(logrus.Fields{
		"populated": record.Populated(),
		"duration":  time.Since(start),
	}).Debug("Attempt finished")
	return record, nil
}

// solveChallenge tries up to maxAttempts challenges, re-navigating between
// tries so the site renders a fresh one.
func (a *attempt) solveChallenge(ctx context.Context) error {
	var lastErr error
	for try := 1; try <= a.n.maxAttempts; try++ {
		if try > 1 {
			if err := sleep(ctx, a.n.retryDelay); err != nil {
				return a.fail(ErrChallengeUnsolved, err)
			}
			if err := a.page.Navigate(ctx, a.url); err != nil {
				return a.fail(ErrNavigation, err)
			}
		}

		err := a.tryChallenge(ctx)
		if err == nil {
			metrics.ObserveCaptcha("accepted")
			if try > 1 {
				a.logger.WithField("tries", try).Debug("Challenge accepted after retry")
			}
			return nil
		}
		if ctx.Err() != nil {
			return a.fail(ErrChallengeUnsolved, ctx.Err())
		}
		if errors.Is(err, errChallengeRejected) {
			metrics.ObserveCaptcha("rejected")
		}
		lastErr = err
		a.logger.WithFields(logrus.Fields{
			"try":       try,
			"max_tries": a.n.maxAttempts,
		}).WithError(err).Debug("Challenge attempt failed")
	}
	return a.fail(ErrChallengeUnsolved, lastErr)
}

func (a *attempt) tryChallenge(ctx context.Context) error {
	img, err := a.page.CaptureChallenge(ctx)
	if err != nil {
		return err
	}
	token, err := a.n.solver.Solve(ctx, img)
	if err != nil {
		return err
	}
	if err := a.page.SubmitChallenge(ctx, token); err != nil {
		return err
	}
	ok, err := a.page.ChallengeAccepted(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errChallengeRejected
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
