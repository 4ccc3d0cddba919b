// Package worker runs units of work in short lived child processes.
//
// The parent writes one CBOR encoded request to the child's stdin. The child
// answers on stdout with zero or more progress messages followed by exactly
// one result message.
package worker

import (
	"io"
	"reflect"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

type MessageType string

const (
	TypeProgress MessageType = "progress"
	TypeResult   MessageType = "result"
)

// Progress is a log line emitted by a child while it works.
type Progress struct {
	State   string `cbor:"state"`
	Message string `cbor:"message"`
	Details string `cbor:"details,omitempty"`
}

// StateOutput marks progress that carries one line of command output. It
// keeps the inactivity watchdog alive but is not meant for display.
const StateOutput = "output"

type Message struct {
	Type     MessageType     `cbor:"type"`
	Progress *Progress       `cbor:"progress,omitempty"`
	Payload  cbor.RawMessage `cbor:"payload,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("worker: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("worker: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

func unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

func newDecoder(r io.Reader) *cbor.Decoder { return decMode.NewDecoder(r) }

// messageWriter serializes writes from concurrent progress callbacks.
type messageWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

func newMessageWriter(w io.Writer) *messageWriter {
	return &messageWriter{enc: encMode.NewEncoder(w)}
}

func (m *messageWriter) write(msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enc.Encode(msg)
}
