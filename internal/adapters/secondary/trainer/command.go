package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	ports "adapter-persistence-service/internal/core/ports/output"
)

// Command runs an external training program:
//
//	<command> --data-dir D --output-dir O --params P.json
//
// Exit status 0 means success. When the last line of stdout is a JSON object
// it is decoded as the outcome.
type Command struct {
	argv    []string
	timeout time.Duration
}

func NewCommand(command string, timeout time.Duration) (*Command, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("trainer command is empty")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("trainer %q not found on PATH: %w", argv[0], err)
	}
	argv[0] = path
	return &Command{argv: argv, timeout: timeout}, nil
}

func (c *Command) Train(ctx context.Context, job ports.TrainingJob) (*ports.TrainingOutcome, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	paramsPath, err := writeParams(job)
	if err != nil {
		return nil, err
	}
	defer os.Remove(paramsPath)

	args := append(append([]string(nil), c.argv[1:]...),
		"--data-dir", job.DataDir,
		"--output-dir", job.AdapterDir,
		"--params", paramsPath,
	)
	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	logger := log.WithFields(log.Fields{"trainer": c.argv[0], "data_dir": job.DataDir})
	logger.Info("Starting training command")

	runErr := cmd.Run()
	logger = logger.WithField("duration", time.Since(start).String())

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ee *exec.ExitError
		if !errors.As(runErr, &ee) {
			return nil, fmt.Errorf("run trainer: %w", runErr)
		}
		logger.WithField("exit_code", ee.ExitCode()).Warn("Training command failed")
		msg := lastLine(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("trainer exited with code %d", ee.ExitCode())
		}
		return &ports.TrainingOutcome{Success: false, Message: msg}, nil
	}

	logger.Info("Training command finished")
	outcome := &ports.TrainingOutcome{Success: true, Message: "training completed"}
	if line := lastLine(stdout.String()); strings.HasPrefix(line, "{") {
		var reported ports.TrainingOutcome
		if err := json.Unmarshal([]byte(line), &reported); err != nil {
			logger.WithError(err).Debug("Trainer output is not an outcome object")
		} else {
			outcome = &reported
		}
	}
	return outcome, nil
}

// writeParams stores the params file beside the adapter directory so it never
// ends up inside the packaged artifact.
func writeParams(job ports.TrainingJob) (string, error) {
	raw, err := json.Marshal(job.Params)
	if err != nil {
		return "", fmt.Errorf("marshal training params: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(job.AdapterDir), "params-*.json")
	if err != nil {
		return "", fmt.Errorf("create params file: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write params file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
