package navigator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/logger"
	"github.com/nexconsult/rera-harvester/internal/models"
	"github.com/nexconsult/rera-harvester/internal/service/captcha"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	navigateErr error
	accepted    []bool
	stableErr   error
	html        string

	navigations int
	submitted   []string
}

func (p *fakePage) Navigate(context.Context, string) error {
	p.navigations++
	return p.navigateErr
}

func (p *fakePage) CaptureChallenge(context.Context) ([]byte, error) {
	return []byte("png"), nil
}

func (p *fakePage) SubmitChallenge(_ context.Context, token string) error {
	p.submitted = append(p.submitted, token)
	return nil
}

func (p *fakePage) ChallengeAccepted(context.Context) (bool, error) {
	i := len(p.submitted) - 1
	if i < len(p.accepted) {
		return p.accepted[i], nil
	}
	return false, nil
}

func (p *fakePage) WaitStable(context.Context) error { return p.stableErr }

func (p *fakePage) HTML(context.Context) (string, error) { return p.html, nil }

type fakeSolver struct {
	tokens []string
	calls  int
}

func (s *fakeSolver) Solve(context.Context, []byte) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.tokens) && s.tokens[i] != "" {
		return s.tokens[i], nil
	}
	return "", captcha.ErrUnrecognized
}

type fakeExtractor struct{ err error }

func (e fakeExtractor) Extract(_ context.Context, id int, html string) (*models.ProjectRecord, error) {
	if e.err != nil {
		return nil, e.err
	}
	b := models.NewRecordBuilder(id)
	b.Set("project_name", html)
	return b.Build(), nil
}

func newTestNavigator(solver Solver, extractor Extractor) *Navigator {
	cfg := config.CaptchaConfig{MaxAttempts: 3, RetryDelay: time.Millisecond}
	harvest := config.HarvestConfig{BaseURL: "https://example.test/public/project/view/"}
	return New(harvest.ProjectURL, solver, extractor, cfg, logger.Discard())
}

func TestRunSucceeds(t *testing.T) {
	page := &fakePage{accepted: []bool{true}, html: "Sunrise Heights"}
	n := newTestNavigator(&fakeSolver{tokens: []string{"AB12C9"}}, fakeExtractor{})

	rec, err := n.Run(context.Background(), page, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, rec.ProjectID())
	name, _ := rec.Get("project_name")
	assert.Equal(t, "Sunrise Heights", name)
	assert.Equal(t, []string{"AB12C9"}, page.submitted)
	assert.Equal(t, 1, page.navigations)
}

func TestRunRetriesChallengeWithFreshPage(t *testing.T) {
	page := &fakePage{accepted: []bool{false, true}, html: "ok"}
	solver := &fakeSolver{tokens: []string{"", "WRONG1", "RIGHT2"}}
	n := newTestNavigator(solver, fakeExtractor{})

	_, err := n.Run(context.Background(), page, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, solver.calls)
	assert.Equal(t, []string{"WRONG1", "RIGHT2"}, page.submitted)
	assert.Equal(t, 3, page.navigations)
}

func TestRunChallengeBudgetExhausted(t *testing.T) {
	page := &fakePage{}
	solver := &fakeSolver{}
	n := newTestNavigator(solver, fakeExtractor{})

	_, err := n.Run(context.Background(), page, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallengeUnsolved)
	assert.ErrorIs(t, err, captcha.ErrUnrecognized)

	var ae *AttemptError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, StateChallengePending, ae.State)
	assert.Equal(t, 2, ae.ProjectID)
	assert.Equal(t, 3, solver.calls)
}

func TestRunFailureClasses(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		page      *fakePage
		extractor Extractor
		kind      error
		state     State
	}{
		{"navigation", &fakePage{navigateErr: boom}, fakeExtractor{}, ErrNavigation, StateNavigating},
		{"render", &fakePage{accepted: []bool{true}, stableErr: boom}, fakeExtractor{}, ErrRenderTimeout, StateChallengeSolved},
		{"extraction", &fakePage{accepted: []bool{true}}, fakeExtractor{err: boom}, ErrExtraction, StateExtracting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNavigator(&fakeSolver{tokens: []string{"AB12C9"}}, tt.extractor)

			_, err := n.Run(context.Background(), tt.page, 3)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorIs(t, err, boom)

			var ae *AttemptError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.state, ae.State)
		})
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := &fakePage{}
	n := newTestNavigator(&fakeSolver{}, fakeExtractor{})

	_, err := n.Run(ctx, page, 4)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrChallengeUnsolved)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CHALLENGE_PENDING", StateChallengePending.String())
	assert.Equal(t, "FAILED", StateFailed.String())
	assert.Equal(t, "State(42)", State(42).String())
}
