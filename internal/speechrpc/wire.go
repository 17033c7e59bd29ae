// Package speechrpc carries streaming recognition over a gRPC bidirectional
// stream built from protobuf well-known types.
package speechrpc

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/candi/dictation/internal/recognition"
)

const (
	ServiceName  = "candi.speech.v1.Recognizer"
	streamName   = "Stream"
	streamMethod = "/" + ServiceName + "/" + streamName

	DefaultSampleRateHz = 16000
)

// EventType tags a server event.
type EventType string

const (
	EventStart  EventType = "start"
	EventResult EventType = "result"
	EventError  EventType = "error"
	EventEnd    EventType = "end"
)

var errUnknownEvent = errors.New("unknown event type")

// Event is one decoded server message.
type Event struct {
	Type  EventType
	Batch recognition.Batch
	Error recognition.ErrorKind
}

// Config is the first client message of every stream.
type Config struct {
	Language       string
	SampleRateHz   int
	Continuous     bool
	InterimResults bool
}

// Request is one decoded client message. Exactly one field is set.
type Request struct {
	Config *Config
	Audio  []byte
}

func encodeEvent(ev Event) (*structpb.Struct, error) {
	fields := map[string]any{"type": string(ev.Type)}
	switch ev.Type {
	case EventResult:
		results := make([]any, 0, len(ev.Batch.Fragments))
		for _, fragment := range ev.Batch.Fragments {
			results = append(results, map[string]any{
				"transcript": fragment.Text,
				"is_final":   fragment.IsFinal,
			})
		}
		fields["result_index"] = ev.Batch.ResultIndex
		fields["results"] = results
	case EventError:
		fields["error"] = string(ev.Error)
	case EventStart, EventEnd:
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownEvent, ev.Type)
	}
	return structpb.NewStruct(fields)
}

func decodeEvent(msg *structpb.Struct) (Event, error) {
	fields := msg.GetFields()
	ev := Event{Type: EventType(strings.TrimSpace(fields["type"].GetStringValue()))}
	switch ev.Type {
	case EventStart, EventEnd:
		return ev, nil
	case EventError:
		kind := strings.TrimSpace(fields["error"].GetStringValue())
		if kind == "" {
			return Event{}, errors.New("error event without error kind")
		}
		ev.Error = recognition.ErrorKind(kind)
		return ev, nil
	case EventResult:
		ev.Batch.ResultIndex = int(fields["result_index"].GetNumberValue())
		for i, value := range fields["results"].GetListValue().GetValues() {
			result := value.GetStructValue()
			if result == nil {
				return Event{}, fmt.Errorf("result %d is not an object", i)
			}
			ev.Batch.Fragments = append(ev.Batch.Fragments, recognition.Fragment{
				Text:    result.GetFields()["transcript"].GetStringValue(),
				IsFinal: result.GetFields()["is_final"].GetBoolValue(),
			})
		}
		return ev, nil
	default:
		return Event{}, fmt.Errorf("%w: %q", errUnknownEvent, ev.Type)
	}
}

func encodeConfig(cfg Config) (*anypb.Any, error) {
	msg, err := structpb.NewStruct(map[string]any{
		"language":        cfg.Language,
		"sample_rate_hz":  cfg.SampleRateHz,
		"continuous":      cfg.Continuous,
		"interim_results": cfg.InterimResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return anypb.New(msg)
}

func encodeAudio(chunk []byte) (*anypb.Any, error) {
	return anypb.New(wrapperspb.Bytes(chunk))
}

func decodeRequest(msg *anypb.Any) (Request, error) {
	switch {
	case msg.MessageIs(&wrapperspb.BytesValue{}):
		var audio wrapperspb.BytesValue
		if err := msg.UnmarshalTo(&audio); err != nil {
			return Request{}, fmt.Errorf("decode audio: %w", err)
		}
		return Request{Audio: audio.GetValue()}, nil
	case msg.MessageIs(&structpb.Struct{}):
		var raw structpb.Struct
		if err := msg.UnmarshalTo(&raw); err != nil {
			return Request{}, fmt.Errorf("decode config: %w", err)
		}
		fields := raw.GetFields()
		return Request{Config: &Config{
			Language:       fields["language"].GetStringValue(),
			SampleRateHz:   int(fields["sample_rate_hz"].GetNumberValue()),
			Continuous:     fields["continuous"].GetBoolValue(),
			InterimResults: fields["interim_results"].GetBoolValue(),
		}}, nil
	default:
		return Request{}, fmt.Errorf("unexpected request type %q", msg.GetTypeUrl())
	}
}
