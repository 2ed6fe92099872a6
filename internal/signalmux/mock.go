package signalmux

import (
	"bytes"
	"io"
	"sync"
)

// MockPort is an in-memory SerialPorter. Lines passed to Feed appear on the
// read side; everything written to the port is captured for Output.
type MockPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu  sync.Mutex
	out bytes.Buffer
}

var _ SerialPorter = (*MockPort)(nil)

// NewMockPort creates an open mock port.
func NewMockPort() *MockPort {
	r, w := io.Pipe()
	return &MockPort{r: r, w: w}
}

// Feed delivers one line to the reader. It blocks until the line is read.
func (m *MockPort) Feed(line string) error {
	_, err := io.WriteString(m.w, line+"\n")
	return err
}

// Hangup ends the input stream so readers see EOF.
func (m *MockPort) Hangup() error { return m.w.Close() }

func (m *MockPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.Write(p)
}

// Output returns everything written so far.
func (m *MockPort) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.String()
}

func (m *MockPort) Close() error {
	m.w.Close()
	return m.r.Close()
}
