package ipc

// Commands accepted by the owner socket.
const (
	CommandStatus  = "status"
	CommandStart   = "start"
	CommandStop    = "stop"
	CommandClear   = "clear"
	CommandNewline = "newline"
	CommandText    = "text"
	CommandQuit    = "quit"
)

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK          bool   `json:"ok"`
	State       string `json:"state,omitempty"`
	Listening   bool   `json:"listening"`
	FinalText   string `json:"final_text,omitempty"`
	InterimText string `json:"interim_text,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}
