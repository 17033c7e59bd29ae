package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/candi/dictation/internal/session"
)

const (
	clearLine = "\r\033[K"
	dim       = "\033[2m"
	reset     = "\033[0m"
)

// renderer prints transcript progress. On a terminal it keeps committed lines
// above a redrawn status line; otherwise it appends committed text only.
type renderer struct {
	w       io.Writer
	tty     bool
	width   func() int
	printed string
}

func newRenderer(w io.Writer) *renderer {
	r := &renderer{w: w, width: func() int { return 0 }}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.tty = true
		r.width = func() int {
			cols, _, err := term.GetSize(int(f.Fd()))
			if err != nil {
				return 0
			}
			return cols
		}
	}
	return r
}

func (r *renderer) Render(snap session.Snapshot) {
	if !r.tty {
		r.appendCommitted(snap.FinalText)
		return
	}

	complete, tail := splitCommitted(snap.FinalText)
	if strings.HasPrefix(complete, r.printed) {
		if fresh := complete[len(r.printed):]; fresh != "" {
			fmt.Fprint(r.w, clearLine+fresh)
		}
	} else {
		fmt.Fprint(r.w, clearLine+complete)
	}
	r.printed = complete

	marker := "  "
	if snap.IsListening {
		marker = "● "
	}
	line := fitTail(marker+tail, r.width()-len([]rune(snap.InterimText))-1)
	if snap.InterimText != "" {
		line += dim + snap.InterimText + reset
	}
	fmt.Fprint(r.w, clearLine+line)
}

// Finish terminates the live output after the session closes.
func (r *renderer) Finish(final session.Snapshot) {
	if !r.tty {
		r.appendCommitted(final.FinalText)
		if r.printed != "" && !strings.HasSuffix(r.printed, "\n") {
			fmt.Fprintln(r.w)
		}
		return
	}
	complete, tail := splitCommitted(final.FinalText)
	if strings.HasPrefix(complete, r.printed) {
		fmt.Fprint(r.w, clearLine+complete[len(r.printed):]+tail)
	} else {
		fmt.Fprint(r.w, clearLine+final.FinalText)
	}
	fmt.Fprintln(r.w)
	r.printed = final.FinalText
}

func (r *renderer) appendCommitted(final string) {
	if final == r.printed {
		return
	}
	if strings.HasPrefix(final, r.printed) {
		fmt.Fprint(r.w, final[len(r.printed):])
	} else {
		// Cleared or rewritten: start a fresh block.
		if r.printed != "" {
			fmt.Fprint(r.w, "\n\n")
		}
		fmt.Fprint(r.w, final)
	}
	r.printed = final
}

// splitCommitted separates whole lines from the unterminated last line.
func splitCommitted(text string) (complete string, tail string) {
	idx := strings.LastIndexByte(text, '\n')
	if idx < 0 {
		return "", text
	}
	return text[:idx+1], text[idx+1:]
}

// fitTail keeps the last width runes of line. width <= 0 disables fitting.
func fitTail(line string, width int) string {
	if width <= 0 {
		return line
	}
	runes := []rune(line)
	if len(runes) <= width {
		return line
	}
	return "…" + string(runes[len(runes)-width+1:])
}
