// Package output applies transcript commit side effects (clipboard and journal).
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/candi/dictation/internal/config"
)

const clipboardTimeout = 2 * time.Second

// Entry is one committed transcript.
type Entry struct {
	SessionID   string    `json:"session_id"`
	StartedAt   time.Time `json:"started_at"`
	CommittedAt time.Time `json:"committed_at"`
	Text        string    `json:"text"`
}

// Committer applies transcript output side effects.
type Committer struct {
	clipboardArgv []string
	journal       *Journal
	logger        *slog.Logger
}

// NewCommitter constructs a transcript committer from runtime config.
func NewCommitter(cfg config.Config, logger *slog.Logger) (*Committer, error) {
	argv, err := cfg.Output.ClipboardArgv()
	if err != nil {
		return nil, err
	}
	c := &Committer{clipboardArgv: argv, logger: logger}
	if cfg.Output.Journal {
		path, err := DefaultJournalPath()
		if err != nil {
			return nil, err
		}
		c.journal = NewJournal(path)
	}
	return c, nil
}

// Commit copies the text to the clipboard and appends it to the journal.
// Blank text is not committed. Both sinks are attempted; their errors are
// joined.
func (c *Committer) Commit(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.Text) == "" {
		return nil
	}
	if entry.CommittedAt.IsZero() {
		entry.CommittedAt = time.Now().UTC()
	}

	var errs []error
	if len(c.clipboardArgv) > 0 {
		clipboardCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
		defer cancel()
		if err := runCommandWithInput(clipboardCtx, c.clipboardArgv, entry.Text); err != nil {
			errs = append(errs, fmt.Errorf("set clipboard: %w", err))
		}
	}
	if c.journal != nil {
		if err := c.journal.Append(entry); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.Info("transcript committed",
			"session_id", entry.SessionID,
			"chars", len([]rune(entry.Text)),
			"clipboard", len(c.clipboardArgv) > 0,
			"journal", c.journal != nil,
		)
	}
	return nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}
