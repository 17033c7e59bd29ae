package speechrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/candi/dictation/internal/recognition"
)

// EventSink receives decoded server events on the receive goroutine.
type EventSink func(Event)

// StreamConfig controls stream initialization.
type StreamConfig struct {
	Endpoint       string
	Language       string
	SampleRateHz   int
	InterimResults bool
	DialTimeout    time.Duration
	OpenTimeout    time.Duration
	DialOptions    []grpc.DialOption
	// DebugEventSinkJSON receives one protojson line per server event.
	DebugEventSinkJSON io.Writer
}

// Stream wraps one active Recognizer/Stream RPC.
type Stream struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	sink   EventSink

	recvDone chan struct{}

	mu            sync.Mutex
	recvErr       error
	closedSend    bool
	debugSinkJSON io.Writer
}

// DialStream connects, sends the stream config and starts the receive loop.
// ctx bounds the lifetime of the whole stream.
func DialStream(ctx context.Context, cfg StreamConfig, sink EventSink) (*Stream, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("recognizer endpoint is empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = cfg.DialTimeout
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = DefaultSampleRateHz
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "ja-JP"
	}
	if sink == nil {
		sink = func(Event) {}
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, cfg.DialOptions...)
	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial recognizer grpc %q: %w", endpoint, err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn.Connect()
	if err := waitForReady(readyCtx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for recognizer grpc readiness: %w", err)
	}

	stream, err := openStreamWithTimeout(ctx, cfg.OpenTimeout, func() (grpc.ClientStream, error) {
		return conn.NewStream(ctx, &serviceDesc.Streams[0], streamMethod)
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open recognizer stream: %w", err)
	}

	configMsg, err := encodeConfig(Config{
		Language:       cfg.Language,
		SampleRateHz:   cfg.SampleRateHz,
		Continuous:     true,
		InterimResults: cfg.InterimResults,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := runWithTimeout(ctx, cfg.OpenTimeout, func() error { return stream.SendMsg(configMsg) }); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send stream config: %w", err)
	}

	s := &Stream{
		conn:          conn,
		stream:        stream,
		sink:          sink,
		recvDone:      make(chan struct{}),
		debugSinkJSON: cfg.DebugEventSinkJSON,
	}
	go s.recvLoop()
	return s, nil
}

// recvLoop delivers server events until the stream ends or fails.
func (s *Stream) recvLoop() {
	defer close(s.recvDone)

	for {
		msg := &structpb.Struct{}
		err := s.stream.RecvMsg(msg)
		if err == nil {
			s.recordEvent(msg)
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}

		s.mu.Lock()
		s.recvErr = err
		s.mu.Unlock()
		return
	}
}

func (s *Stream) recordEvent(msg *structpb.Struct) {
	if sink := s.debugSinkJSON; sink != nil {
		b, err := protojson.Marshal(msg)
		if err == nil {
			_, _ = sink.Write(append(b, '\n'))
		}
	}

	ev, err := decodeEvent(msg)
	if err != nil {
		// Newer servers may send event types this client does not know.
		if errors.Is(err, errUnknownEvent) {
			return
		}
		ev = Event{Type: EventError, Error: recognition.ErrorNetwork}
	}
	s.sink(ev)
}

// SendAudio sends one PCM chunk.
func (s *Stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	closed := s.closedSend
	recvErr := s.recvErr
	s.mu.Unlock()

	if closed {
		return errors.New("stream already closed for sending")
	}
	if recvErr != nil {
		return fmt.Errorf("stream receive loop failed: %w", recvErr)
	}

	msg, err := encodeAudio(chunk)
	if err != nil {
		return fmt.Errorf("encode audio: %w", err)
	}
	return s.stream.SendMsg(msg)
}

// CloseSend half-closes the stream; the server drains and ends it.
func (s *Stream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closedSend {
		return nil
	}
	s.closedSend = true
	return s.stream.CloseSend()
}

// Wait blocks until the receive loop exits and returns its failure, if any.
func (s *Stream) Wait(ctx context.Context) error {
	select {
	case <-s.recvDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvErr
}

// Done closes when the receive loop exits.
func (s *Stream) Done() <-chan struct{} {
	return s.recvDone
}

// Cancel aborts the stream and closes the connection.
func (s *Stream) Cancel() error {
	s.mu.Lock()
	if !s.closedSend {
		s.closedSend = true
		_ = s.stream.CloseSend()
	}
	s.mu.Unlock()
	return s.conn.Close()
}

// Close releases the connection after the stream has ended.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// KindForError maps a stream failure to a recognition error kind.
func KindForError(err error) recognition.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return recognition.ErrorAborted
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return recognition.ErrorNotAllowed
	case codes.Canceled:
		return recognition.ErrorAborted
	case codes.InvalidArgument:
		return recognition.ErrorLanguageNotSupported
	default:
		return recognition.ErrorNetwork
	}
}
