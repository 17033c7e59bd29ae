package pipeline

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/candi/dictation/internal/audio"
)

// describeDevice formats device metadata for logs.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// createDebugFile creates timestamped debug artifacts under state/candi/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "candi", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns XDG_STATE_HOME fallback path for debug artifacts.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}

// wavDump encodes little-endian s16 mono PCM into a WAV file as it arrives.
type wavDump struct {
	file    io.WriteSeeker
	closer  io.Closer
	encoder *wav.Encoder
	carry   []byte
}

func newWAVDump(file *os.File) *wavDump {
	return newWAVDumpTo(file, file)
}

func newWAVDumpTo(w io.WriteSeeker, closer io.Closer) *wavDump {
	return &wavDump{
		file:    w,
		closer:  closer,
		encoder: wav.NewEncoder(w, audio.SampleRateHz, 16, 1, 1),
	}
}

// Write implements io.Writer for audio.CaptureOptions.Tap.
func (d *wavDump) Write(pcm []byte) (int, error) {
	data := append(d.carry, pcm...)
	samples := len(data) / 2
	d.carry = append([]byte(nil), data[samples*2:]...)
	if samples == 0 {
		return len(pcm), nil
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: audio.SampleRateHz},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	for i := range samples {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	if err := d.encoder.Write(buf); err != nil {
		return 0, err
	}
	return len(pcm), nil
}

// Close finalizes the WAV header and closes the file.
func (d *wavDump) Close() error {
	err := d.encoder.Close()
	if d.closer != nil {
		if cerr := d.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
