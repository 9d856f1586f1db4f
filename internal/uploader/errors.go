package uploader

// Kind classifies upload failures.
type Kind string

const (
	KindAborted        Kind = "aborted"
	KindInvalidRequest Kind = "invalid-request"
	KindServer         Kind = "server"
	KindNetwork        Kind = "network"
	KindInvalidFile    Kind = "invalid-file"
)

// Error is returned for every failed upload.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }
