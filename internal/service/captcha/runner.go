package captcha

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner lets the tesseract invocation be stubbed in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *logrus.Logger
}

// Run executes name with args and captures both streams.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if r.Logger != nil {
		fields := logrus.Fields{
			"cmd":         name,
			"args":        strings.Join(args, " "),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if err != nil {
			fields["stderr"] = truncate(errb.String(), 2<<10)
			r.Logger.WithFields(fields).WithError(err).Debug("exec failed")
		} else {
			r.Logger.WithFields(fields).Trace("exec ok")
		}
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
