package recognition

import "strings"

// ErrorKind is the error tag reported by a recognition facility.
type ErrorKind string

const (
	ErrorNoSpeech             ErrorKind = "no-speech"
	ErrorNotAllowed           ErrorKind = "not-allowed"
	ErrorServiceNotAllowed    ErrorKind = "service-not-allowed"
	ErrorAudioCapture         ErrorKind = "audio-capture"
	ErrorNetwork              ErrorKind = "network"
	ErrorAborted              ErrorKind = "aborted"
	ErrorLanguageNotSupported ErrorKind = "language-not-supported"
	ErrorBadGrammar           ErrorKind = "bad-grammar"
)

// ErrorClass groups error kinds by how the session reacts to them.
type ErrorClass string

const (
	ClassBenign      ErrorClass = "benign"
	ClassPermission  ErrorClass = "permission-denied"
	ClassTransient   ErrorClass = "transient"
	ClassUnsupported ErrorClass = "unsupported"
)

// Class classifies an error kind. Unknown kinds are transient.
func (k ErrorKind) Class() ErrorClass {
	switch ErrorKind(strings.ToLower(strings.TrimSpace(string(k)))) {
	case ErrorNoSpeech:
		return ClassBenign
	case ErrorNotAllowed, ErrorServiceNotAllowed:
		return ClassPermission
	default:
		return ClassTransient
	}
}

func (k ErrorKind) String() string {
	return string(k)
}
