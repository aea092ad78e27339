package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserversUpdateCollectors(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(attemptsTotal.WithLabelValues("retry", OutcomeSuccess))
	ObserveAttempt("retry", OutcomeSuccess, 3*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(attemptsTotal.WithLabelValues("retry", OutcomeSuccess)))

	SetQueueDepth("primary", 12)
	assert.Equal(t, float64(12), testutil.ToFloat64(queueDepth.WithLabelValues("primary")))

	SetLedgerSize(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(ledgerSize))

	ObserveBlockFailure("bank")
	assert.GreaterOrEqual(t, testutil.ToFloat64(blockFailuresTotal.WithLabelValues("bank")), float64(1))
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveCaptcha("solved")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rera_captcha_solves_total")
}
