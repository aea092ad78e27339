package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.Harvest.BaseURL)
	assert.Equal(t, 6, cfg.Captcha.TokenLength)
	assert.Equal(t, []int{7, 8}, cfg.Captcha.PageSegModes)
	assert.Equal(t, 3, cfg.Captcha.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Harvest.RetryDelay)
	assert.Equal(t, 0, cfg.Harvest.MaxRetryAttempts)
	assert.Equal(t, 60*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, 2*time.Second, cfg.Browser.SettleDelay)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("START_ID", "100")
	t.Setenv("END_ID", "250")
	t.Setenv("WORKERS", "8")
	t.Setenv("RETRY_DELAY", "1500ms")
	t.Setenv("BROWSER_SETTLE_DELAY", "3")
	t.Setenv("CAPTCHA_PSM", "6, 7,8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Harvest.StartID)
	assert.Equal(t, 250, cfg.Harvest.EndID)
	assert.Equal(t, 8, cfg.Harvest.Workers)
	assert.Equal(t, 1500*time.Millisecond, cfg.Harvest.RetryDelay)
	assert.Equal(t, 3*time.Second, cfg.Browser.SettleDelay)
	assert.Equal(t, []int{6, 7, 8}, cfg.Captcha.PageSegModes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.CORS.AllowedOrigins)
}

func TestLoadRejectsInvertedRange(t *testing.T) {
	t.Setenv("START_ID", "50")
	t.Setenv("END_ID", "10")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadRejectsSingleRecognizerConfig(t *testing.T) {
	t.Setenv("CAPTCHA_PSM", "7")

	_, err := Load()
	require.Error(t, err)
}

func TestProjectURL(t *testing.T) {
	h := HarvestConfig{BaseURL: DefaultBaseURL}
	assert.Equal(t, "https://maharerait.maharashtra.gov.in/public/project/view/1234", h.ProjectURL(1234))
}
