package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/candi/dictation/internal/session"
)

func TestRendererAppendsCommittedTextWithoutTTY(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)
	require.False(t, r.tty)

	r.Render(session.Snapshot{InterimText: "きょ"})
	r.Render(session.Snapshot{FinalText: "今日は"})
	r.Render(session.Snapshot{FinalText: "今日は\n晴れ", InterimText: "です"})
	r.Finish(session.Snapshot{FinalText: "今日は\n晴れ"})

	require.Equal(t, "今日は\n晴れ\n", out.String())
}

func TestRendererStartsFreshBlockAfterClear(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	r.Render(session.Snapshot{FinalText: "古い"})
	r.Render(session.Snapshot{})
	r.Render(session.Snapshot{FinalText: "新しい"})
	r.Finish(session.Snapshot{FinalText: "新しい"})

	require.Equal(t, "古い\n\n新しい\n", out.String())
}

func TestRendererRedrawsStatusLineOnTTY(t *testing.T) {
	var out bytes.Buffer
	r := &renderer{w: &out, tty: true, width: func() int { return 0 }}

	r.Render(session.Snapshot{FinalText: "一行目\n二", InterimText: "ば", IsListening: true})
	require.Equal(t, clearLine+"一行目\n"+clearLine+"● 二"+dim+"ば"+reset, out.String())

	out.Reset()
	r.Render(session.Snapshot{FinalText: "一行目\n二行目", IsListening: true})
	require.Equal(t, clearLine+"● 二行目", out.String())

	out.Reset()
	r.Finish(session.Snapshot{FinalText: "一行目\n二行目"})
	require.Equal(t, clearLine+"二行目\n", out.String())
}

func TestFitTailKeepsEnd(t *testing.T) {
	require.Equal(t, "あいう", fitTail("あいう", 0))
	require.Equal(t, "あいう", fitTail("あいう", 3))
	require.Equal(t, "…うえ", fitTail("あいうえ", 3))
}

func TestSplitCommitted(t *testing.T) {
	complete, tail := splitCommitted("a\nb\nc")
	require.Equal(t, "a\nb\n", complete)
	require.Equal(t, "c", tail)

	complete, tail = splitCommitted("abc")
	require.Empty(t, complete)
	require.Equal(t, "abc", tail)
}
