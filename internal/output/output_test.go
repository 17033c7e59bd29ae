package output

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/candi/dictation/internal/config"
)

func TestRunCommandWithInputWritesStdin(t *testing.T) {
	scriptPath := writeStdinCaptureScript(t)
	outputPath := filepath.Join(t.TempDir(), "stdin.txt")

	err := runCommandWithInput(context.Background(), []string{scriptPath, outputPath}, "こんにちは from candi")
	require.NoError(t, err)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "こんにちは from candi", string(data))
}

func TestRunCommandWithInputRejectsEmptyArgv(t *testing.T) {
	err := runCommandWithInput(context.Background(), nil, "payload")
	require.Error(t, err)
	require.Contains(t, err.Error(), "argv cannot be empty")
}

func TestCommitWritesClipboardAndJournal(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	scriptPath := writeStdinCaptureScript(t)
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")

	cfg := config.Default()
	cfg.Output.ClipboardCmd = scriptPath + " " + clipboardPath
	cfg.Output.Journal = true

	committer, err := NewCommitter(cfg, nil)
	require.NoError(t, err)

	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	err = committer.Commit(context.Background(), Entry{SessionID: "s1", StartedAt: started, Text: "今日は\nAPI 2"})
	require.NoError(t, err)

	data, err := os.ReadFile(clipboardPath)
	require.NoError(t, err)
	require.Equal(t, "今日は\nAPI 2", string(data))

	entries := readJournal(t, committer.journal.Path())
	require.Len(t, entries, 1)
	require.Equal(t, "s1", entries[0].SessionID)
	require.Equal(t, started, entries[0].StartedAt)
	require.False(t, entries[0].CommittedAt.IsZero())
	require.Equal(t, "今日は\nAPI 2", entries[0].Text)
}

func TestCommitSkipsBlankTranscript(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	scriptPath := writeStdinCaptureScript(t)
	clipboardPath := filepath.Join(t.TempDir(), "clipboard.txt")

	cfg := config.Default()
	cfg.Output.ClipboardCmd = scriptPath + " " + clipboardPath

	committer, err := NewCommitter(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, committer.Commit(context.Background(), Entry{Text: " \n\n "}))

	_, statErr := os.Stat(clipboardPath)
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(committer.journal.Path())
	require.True(t, os.IsNotExist(statErr))
}

func TestCommitJournalOnlyWhenClipboardDisabled(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	cfg := config.Default()
	cfg.Output.ClipboardCmd = ""

	committer, err := NewCommitter(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, committer.Commit(context.Background(), Entry{Text: "one"}))
	require.NoError(t, committer.Commit(context.Background(), Entry{Text: "two"}))

	entries := readJournal(t, committer.journal.Path())
	require.Len(t, entries, 2)
	require.Equal(t, "two", entries[1].Text)
}

func TestCommitReportsClipboardFailureButStillJournals(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	failScript := writeFailScript(t, "clipboard failed")

	cfg := config.Default()
	cfg.Output.ClipboardCmd = failScript

	committer, err := NewCommitter(cfg, nil)
	require.NoError(t, err)

	err = committer.Commit(context.Background(), Entry{Text: "captured transcript"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "set clipboard")
	require.Len(t, readJournal(t, committer.journal.Path()), 1)
}

func TestNewCommitterRejectsBadClipboardCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Output.ClipboardCmd = "wl-copy 'unterminated"

	_, err := NewCommitter(cfg, nil)
	require.Error(t, err)
}

func TestDefaultJournalPath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdg)
	path, err := DefaultJournalPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "candi", "transcripts.jsonl"), path)

	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)
	path, err = DefaultJournalPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state", "candi", "transcripts.jsonl"), path)
}

func readJournal(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	stat, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func writeStdinCaptureScript(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "capture-stdin.sh")
	script := `#!/usr/bin/env bash
set -euo pipefail
cat > "$1"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeFailScript(t *testing.T, message string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "fail.sh")
	script := "#!/usr/bin/env bash\nset -euo pipefail\necho " + "\"" + message + "\"" + " >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}
