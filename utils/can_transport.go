package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type CANWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// CANReader blocks for the next frame on the bus.
type CANReader interface {
	ReadFrame(ctx context.Context) (can.Frame, error)
	Close() error
}

// ErrBusClosed is returned by a closed LoopbackBus.
var ErrBusClosed = errors.New("can bus closed")

type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// SocketCANReader receives frames with the einride socketcan receiver.
type SocketCANReader struct {
	conn   net.Conn
	recv   *socketcan.Receiver
	frames chan can.Frame
	errs   chan error
	once   sync.Once
}

func NewSocketCANReader(ctx context.Context, iface string) (*SocketCANReader, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &SocketCANReader{
		conn:   conn,
		recv:   socketcan.NewReceiver(conn),
		frames: make(chan can.Frame),
		errs:   make(chan error, 1),
	}, nil
}

// pump runs one receive goroutine for the reader's lifetime; closing the
// socket ends it.
func (r *SocketCANReader) pump() {
	for r.recv.Receive() {
		r.frames <- r.recv.Frame()
	}
	err := r.recv.Err()
	if err == nil {
		err = ErrBusClosed
	}
	r.errs <- err
	close(r.frames)
}

func (r *SocketCANReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	r.once.Do(func() { go r.pump() })

	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-r.frames:
		if !ok {
			return can.Frame{}, <-r.errs
		}
		return f, nil
	}
}

func (r *SocketCANReader) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// LoopbackBus is an in-process bus for offline runs and tests: every written
// frame is delivered to readers and kept in a bounded history.
type LoopbackBus struct {
	mu      sync.Mutex
	frames  chan can.Frame
	history []can.Frame
	limit   int
	closed  bool
	done    chan struct{}
}

// NewLoopbackBus buffers up to depth undelivered frames and remembers the
// last limit written frames.
func NewLoopbackBus(depth, limit int) *LoopbackBus {
	return &LoopbackBus{
		frames: make(chan can.Frame, depth),
		limit:  limit,
		done:   make(chan struct{}),
	}
}

// WriteFrame never blocks: frames that do not fit the buffer are dropped from
// delivery but still recorded.
func (b *LoopbackBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if b.limit > 0 {
		if len(b.history) == b.limit {
			b.history = append(b.history[:0], b.history[1:]...)
		}
		b.history = append(b.history, frame)
	}
	select {
	case b.frames <- frame:
	default:
	}
	return nil
}

// Inject queues a frame for readers without recording it, as if another node
// sent it.
func (b *LoopbackBus) Inject(frame can.Frame) {
	select {
	case b.frames <- frame:
	case <-b.done:
	}
}

func (b *LoopbackBus) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-b.done:
		return can.Frame{}, ErrBusClosed
	case f := <-b.frames:
		return f, nil
	}
}

// History returns a copy of the recorded frames, oldest first.
func (b *LoopbackBus) History() []can.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]can.Frame(nil), b.history...)
}

func (b *LoopbackBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}
