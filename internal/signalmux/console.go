package signalmux

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/waypoints/internal/monitoring"
)

var ErrWriteFailed = fmt.Errorf("failed to write to console port")

var logf = monitoring.Component("console")

// Console bridges a line-oriented serial terminal to a bus. Each inbound line
// "<topic> [json]" is published; Echo writes bus traffic back out in the same
// form.
type Console[T SerialPorter] struct {
	port      T
	bus       Mux
	commandMu sync.Mutex
	closing   bool
	closingMu sync.Mutex
}

// NewConsole wraps an open port.
func NewConsole[T SerialPorter](port T, bus Mux) *Console[T] {
	return &Console[T]{port: port, bus: bus}
}

// SendLine writes one line to the port.
func (c *Console[T]) SendLine(line string) error {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	n, err := c.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the port and publishes them until ctx ends or the
// port reaches EOF. Unparseable lines are answered with an "! error" line and
// otherwise ignored.
func (c *Console[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(c.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs apart from the loop below so cancellation
	// is observed even while the port is idle
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				return nil
			}
			if c.isClosing() {
				return nil
			}
			c.handleLine(line)
		}
	}
}

func (c *Console[T]) handleLine(line string) {
	topic, payload, err := ParseLine(line)
	if err != nil {
		logf("rejected line %q: %v", line, err)
		_ = c.SendLine("! " + err.Error())
		return
	}
	if topic == "" {
		return
	}
	if err := c.bus.Publish(topic, payload); err != nil {
		logf("publish %s: %v", topic, err)
		_ = c.SendLine("! " + err.Error())
	}
}

// Echo writes every message on topic to the port until ctx ends.
func (c *Console[T]) Echo(ctx context.Context, topic string) error {
	id, ch := c.bus.Subscribe(topic)
	defer c.bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := c.SendLine(FormatLine(msg.Topic, msg.Payload)); err != nil {
				return fmt.Errorf("echo %s: %w", topic, err)
			}
		}
	}
}

func (c *Console[T]) isClosing() bool {
	c.closingMu.Lock()
	defer c.closingMu.Unlock()
	return c.closing
}

// Close stops Monitor and closes the port. The bus is left open.
func (c *Console[T]) Close() error {
	c.closingMu.Lock()
	c.closing = true
	c.closingMu.Unlock()
	return c.port.Close()
}
