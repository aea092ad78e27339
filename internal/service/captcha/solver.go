// Package captcha turns a rendered challenge image into a text token using
// image normalization, several tesseract passes and a majority vote.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nexconsult/rera-harvester/internal/config"
	"github.com/nexconsult/rera-harvester/internal/metrics"
	"github.com/sirupsen/logrus"
)

// ErrUnrecognized means no recognizer pass produced a valid token.
var ErrUnrecognized = errors.New("captcha unrecognized")

const tokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Solver runs the OCR fan-out for one challenge at a time. It is safe for concurrent use.
type Solver struct {
	cfg    config.CaptchaConfig
	runner Runner
	logger *logrus.Logger
}

// NewSolver creates a solver. A nil runner uses ExecRunner.
func NewSolver(cfg config.CaptchaConfig, runner Runner, logger *logrus.Logger) *Solver {
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if cfg.TokenLength <= 0 {
		cfg.TokenLength = 6
	}
	if len(cfg.PageSegModes) == 0 {
		cfg.PageSegModes = []int{7, 8}
	}
	return &Solver{cfg: cfg, runner: runner, logger: logger}
}

// Solve returns the best-guess token for raw challenge bytes.
func (s *Solver) Solve(ctx context.Context, raw []byte) (string, error) {
	img, err := Decode(raw)
	if err != nil {
		return "", err
	}
	normalized, err := EncodePNG(Normalize(img))
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "rera-captcha-")
	if err != nil {
		return "", fmt.Errorf("captcha workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	rawPath := filepath.Join(dir, "raw.png")
	normPath := filepath.Join(dir, "norm.png")
	if err := os.WriteFile(rawPath, raw, 0o600); err != nil {
		return "", fmt.Errorf("write raw challenge: %w", err)
	}
	if err := os.WriteFile(normPath, normalized, 0o600); err != nil {
		return "", fmt.Errorf("write normalized challenge: %w", err)
	}

	var (
		outputs []string
		lastErr error
	)
	for _, path := range []string{rawPath, normPath} {
		for _, psm := range s.cfg.PageSegModes {
			text, err := s.recognize(ctx, path, psm)
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				lastErr = err
				s.logger.WithFields(logrus.Fields{
					"image": filepath.Base(path),
					"psm":   psm,
				}).WithError(err).Debug("Recognizer pass failed")
				continue
			}
			outputs = append(outputs, text)
		}
	}

	candidates := FilterCandidates(outputs, s.cfg.TokenLength)
	token, ok := Vote(candidates)

	s.logger.WithFields(logrus.Fields{
		"outputs":    outputs,
		"candidates": candidates,
		"token":      token,
	}).Debug("Captcha vote")

	s.dump(raw, normalized, token)

	if !ok {
		metrics.ObserveCaptcha("unrecognized")
		if lastErr != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognized, lastErr)
		}
		return "", ErrUnrecognized
	}
	metrics.ObserveCaptcha("solved")
	return token, nil
}

func (s *Solver) recognize(ctx context.Context, path string, psm int) (string, error) {
	args := []string{
		path, "stdout",
		"--psm", strconv.Itoa(psm),
		"--oem", "3",
		"-c", "tessedit_char_whitelist=" + tokenAlphabet,
	}
	if s.cfg.Language != "" {
		args = append(args, "-l", s.cfg.Language)
	}

	out, _, err := s.runner.Run(ctx, s.cfg.TesseractPath, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract psm %d: %w", psm, err)
	}
	return strings.Join(strings.Fields(string(out)), ""), nil
}

// dump keeps the challenge images when a debug directory is configured.
func (s *Solver) dump(raw, normalized []byte, token string) {
	if s.cfg.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.DebugDir, 0o755); err != nil {
		s.logger.WithError(err).Warn("Cannot create captcha debug dir")
		return
	}
	label := token
	if label == "" {
		label = "unrecognized"
	}
	prefix := filepath.Join(s.cfg.DebugDir, fmt.Sprintf("%d_%s", time.Now().UnixNano(), label))
	for suffix, data := range map[string][]byte{"_raw.png": raw, "_norm.png": normalized} {
		if err := os.WriteFile(prefix+suffix, data, 0o644); err != nil {
			s.logger.WithError(err).Warn("Cannot write captcha debug image")
		}
	}
}

// FilterCandidates keeps outputs of exactly length characters from the token alphabet.
func FilterCandidates(outputs []string, length int) []string {
	var out []string
	for _, o := range outputs {
		if len(o) != length {
			continue
		}
		valid := true
		for _, r := range o {
			if !strings.ContainsRune(tokenAlphabet, r) {
				valid = false
				break
			}
		}
		if valid {
			out = append(out, o)
		}
	}
	return out
}

// Vote returns the most frequent candidate; ties go to the one seen first.
func Vote(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	counts := make(map[string]int, len(candidates))
	best, bestCount := "", 0
	for _, c := range candidates {
		counts[c]++
	}
	for _, c := range candidates {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best, true
}
