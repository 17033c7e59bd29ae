// Package cli defines the candi command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Globals are flags shared by every command.
type Globals struct {
	ConfigPath string
}

// ListenFlags tune the listen command.
type ListenFlags struct {
	// Paused leaves the session idle until a start command arrives.
	Paused   bool
	NoLive   bool
	LiveAddr string
}

// Actions executes parsed commands.
type Actions interface {
	Listen(ctx context.Context, g Globals, flags ListenFlags) error
	Forward(ctx context.Context, g Globals, command string) error
	Replay(ctx context.Context, g Globals, path string) error
	Devices(ctx context.Context, g Globals) error
	Doctor(ctx context.Context, g Globals) error
	Version() error
}

// ExitError carries a non-usage failure and its exit code. Silent errors
// have already been reported to the user.
type ExitError struct {
	Code   int
	Err    error
	Silent bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an Execute error to a process exit code: 0 ok, 1 failure,
// 2 usage.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 2
}

// forwarded lists the commands relayed to a running listen owner.
var forwarded = []struct {
	name  string
	short string
}{
	{"start", "Start listening in the running session"},
	{"stop", "Stop listening in the running session"},
	{"clear", "Clear the running session's transcript"},
	{"newline", "Insert a paragraph break in the running session"},
	{"status", "Print the running session's state"},
	{"text", "Print the running session's transcript"},
	{"quit", "Commit the transcript and exit the running session"},
}

// NewRoot builds the command tree for binaryName.
func NewRoot(binaryName string, actions Actions, stdout, stderr io.Writer) *cobra.Command {
	var globals Globals

	root := &cobra.Command{
		Use:           binaryName,
		Short:         "Japanese dictation with live transcript normalization",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `candi listens to the microphone, streams audio to a speech recognizer and
accumulates a normalized transcript. Pauses insert line and paragraph breaks.

A running "listen" session is controlled from other terminals with start,
stop, clear, newline, status, text and quit.`,
		Example: `  candi listen
  candi listen --paused --live-addr 127.0.0.1:7319
  candi newline
  candi quit
  candi replay session.jsonl`,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&globals.ConfigPath, "config", "c", "",
		"Path to config file (TOML). Defaults to $XDG_CONFIG_HOME/candi/config.toml")

	run := func(fn func(context.Context) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if err := fn(cmd.Context()); err != nil {
				var exitErr *ExitError
				if errors.As(err, &exitErr) {
					return err
				}
				return &ExitError{Code: 1, Err: err}
			}
			return nil
		}
	}

	var listenFlags ListenFlags
	listen := &cobra.Command{
		Use:   "listen",
		Short: "Own a dictation session and render the transcript",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context) error {
			return actions.Listen(ctx, globals, listenFlags)
		}),
	}
	listen.Flags().BoolVar(&listenFlags.Paused, "paused", false, "wait for a start command before listening")
	listen.Flags().BoolVar(&listenFlags.NoLive, "no-live", false, "disable the live websocket feed")
	listen.Flags().StringVar(&listenFlags.LiveAddr, "live-addr", "", "serve the live feed on this address")
	root.AddCommand(listen)

	for _, fwd := range forwarded {
		command := fwd.name
		root.AddCommand(&cobra.Command{
			Use:   command,
			Short: fwd.short,
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context) error {
				return actions.Forward(ctx, globals, command)
			}),
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "replay FILE",
		Short: "Run a session against a recorded JSONL event script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context) error {
				return actions.Replay(ctx, globals, args[0])
			})(cmd, args)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "List available input devices",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context) error {
			return actions.Devices(ctx, globals)
		}),
	})
	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Run configuration and environment checks",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context) error {
			return actions.Doctor(ctx, globals)
		}),
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: run(func(context.Context) error {
			return actions.Version()
		}),
	})

	return root
}
