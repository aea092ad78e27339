package captcha

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	outputs map[string]string // key: "<image>:<psm>"
	err     error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return nil, []byte("boom"), f.err
	}
	key := filepath.Base(args[0]) + ":" + args[3]
	return []byte(f.outputs[key]), nil, nil
}

func challengePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 60, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 60; x++ {
			c := color.RGBA{R: 230, G: 225, B: 210, A: 255}
			if x%10 < 4 && y > 4 && y < 16 {
				c = color.RGBA{R: 20, G: 30, B: 40, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	data, err := EncodePNG(img)
	require.NoError(t, err)
	return data
}

func testConfig() config.CaptchaConfig {
	return config.CaptchaConfig{
		TesseractPath: "tesseract",
		Language:      "eng",
		TokenLength:   6,
		PageSegModes:  []int{7, 8},
	}
}

func TestVoteMajority(t *testing.T) {
	got, ok := Vote([]string{"AB12C9", "AB12C9", "XZ99KK"})
	require.True(t, ok)
	assert.Equal(t, "AB12C9", got)
}

func TestVoteTieGoesToFirstSeen(t *testing.T) {
	got, ok := Vote([]string{"AB12C9", "XZ99KK"})
	require.True(t, ok)
	assert.Equal(t, "AB12C9", got)

	got, ok = Vote([]string{"XZ99KK", "AB12C9", "AB12C9", "XZ99KK"})
	require.True(t, ok)
	assert.Equal(t, "XZ99KK", got)
}

func TestVoteEmpty(t *testing.T) {
	_, ok := Vote(nil)
	assert.False(t, ok)
}

func TestFilterCandidates(t *testing.T) {
	got := FilterCandidates([]string{"AB12C9", "AB12C", "AB12C9X", "AB-2C9", "ab12c9", "", "ÀB12C9"}, 6)
	assert.Equal(t, []string{"AB12C9", "ab12c9"}, got)
}

func TestOtsuThresholdSeparatesBimodalImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		if i%2 == 0 {
			img.Pix[i] = 40
		} else {
			img.Pix[i] = 210
		}
	}
	th := OtsuThreshold(img)
	assert.GreaterOrEqual(t, th, uint8(40))
	assert.Less(t, th, uint8(210))
}

func TestNormalizeBinarizes(t *testing.T) {
	gray, err := Preprocess(challengePNG(t))
	require.NoError(t, err)

	assert.Equal(t, 60, gray.Bounds().Dx())
	var black, white int
	for _, v := range gray.Pix {
		switch v {
		case 0:
			black++
		case 255:
			white++
		default:
			t.Fatalf("non-binary pixel value %d", v)
		}
	}
	assert.Positive(t, black)
	assert.Positive(t, white)
	// Glyph centre stays dark, background stays light.
	assert.Equal(t, uint8(0), gray.GrayAt(1, 10).Y)
	assert.Equal(t, uint8(255), gray.GrayAt(7, 1).Y)
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	_, err := Preprocess([]byte("not an image"))
	require.Error(t, err)
}

func TestSolveRunsEveryPassAndVotes(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"raw.png:7":  "XZ99KK\n",
		"raw.png:8":  "AB12 C9\n",
		"norm.png:7": "AB12C9",
		"norm.png:8": "garbage!!",
	}}
	s := NewSolver(testConfig(), runner, logger.Discard())

	token, err := s.Solve(context.Background(), challengePNG(t))
	require.NoError(t, err)
	assert.Equal(t, "AB12C9", token)

	require.Len(t, runner.calls, 4)
	for _, call := range runner.calls {
		joined := strings.Join(call, " ")
		assert.Contains(t, joined, "tessedit_char_whitelist="+tokenAlphabet)
		assert.Contains(t, joined, "stdout")
	}
	assert.Equal(t, "raw.png", filepath.Base(runner.calls[0][1]))
	assert.Equal(t, "norm.png", filepath.Base(runner.calls[3][1]))
}

func TestSolveUnrecognized(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"raw.png:7": "AB1"}}
	s := NewSolver(testConfig(), runner, logger.Discard())

	_, err := s.Solve(context.Background(), challengePNG(t))
	require.ErrorIs(t, err, ErrUnrecognized)
}

func TestSolveAllRecognizersFail(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1")}
	s := NewSolver(testConfig(), runner, logger.Discard())

	_, err := s.Solve(context.Background(), challengePNG(t))
	require.ErrorIs(t, err, ErrUnrecognized)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestSolveWritesDebugImages(t *testing.T) {
	cfg := testConfig()
	cfg.DebugDir = filepath.Join(t.TempDir(), "captchas")
	runner := &fakeRunner{outputs: map[string]string{"norm.png:7": "QW34ER"}}
	s := NewSolver(cfg, runner, logger.Discard())

	token, err := s.Solve(context.Background(), challengePNG(t))
	require.NoError(t, err)
	assert.Equal(t, "QW34ER", token)

	entries, err := os.ReadDir(cfg.DebugDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Contains(t, e.Name(), "_QW34ER_")
	}
}
