package speechrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"
)

// Recognizer is implemented by recognition backends.
type Recognizer interface {
	Stream(*ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Recognizer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    streamName,
		Handler:       streamHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "candi/speech/v1/recognizer.proto",
}

// RegisterRecognizerServer exposes r on s.
func RegisterRecognizerServer(s grpc.ServiceRegistrar, r Recognizer) {
	s.RegisterService(&serviceDesc, r)
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	recognizer, ok := srv.(Recognizer)
	if !ok {
		return errors.New("registered service is not a Recognizer")
	}
	return recognizer.Stream(&ServerStream{stream: stream})
}

// ServerStream is the server half of one Recognizer/Stream RPC.
type ServerStream struct {
	stream grpc.ServerStream
}

func (s *ServerStream) Context() context.Context {
	return s.stream.Context()
}

// Recv returns the next client message, or io.EOF after the client half-closes.
func (s *ServerStream) Recv() (Request, error) {
	msg := &anypb.Any{}
	if err := s.stream.RecvMsg(msg); err != nil {
		return Request{}, err
	}
	return decodeRequest(msg)
}

// Send writes one event to the client.
func (s *ServerStream) Send(ev Event) error {
	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return s.stream.SendMsg(msg)
}
