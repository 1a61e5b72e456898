package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command recognizes speech by running an external program with the
// utterance as a WAV file on stdin and reading the transcript from stdout.
type Command struct {
	Argv []string
}

func (c Command) Recognize(ctx context.Context, u Utterance) (string, error) {
	if u.Text != "" {
		return TextRecognizer{}.Recognize(ctx, u)
	}
	if len(c.Argv) == 0 {
		return "", errors.New("voice: no recognizer command configured")
	}

	var wav bytes.Buffer
	if err := writeWAV(&wav, u.Samples, int(u.Rate)); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = &wav
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v: %s", ErrRecognitionFailure, c.Argv[0], err, strings.TrimSpace(stderr.String()))
	}
	text := strings.ToLower(strings.TrimSpace(string(out)))
	if text == "" {
		return "", fmt.Errorf("%w: empty transcript", ErrRecognitionFailure)
	}
	return text, nil
}
