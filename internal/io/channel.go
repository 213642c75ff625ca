package io

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"ransim/pkg/ngap"
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrChannelBroken = errors.New("channel broken")
)

const inboxSize = 1024

// DefaultWriteTimeout bounds a single frame write. A peer that stops
// reading for longer breaks the channel.
const DefaultWriteTimeout = time.Second

// Channel is an ordered, message-framed link to one peer. Received messages
// are queued by a reader goroutine so consumers can poll without blocking.
type Channel struct {
	conn net.Conn
	r    *bufio.Reader
	log  *zap.Logger

	wmu          sync.Mutex
	writeTimeout time.Duration

	inbox chan ngap.Message
	done  chan struct{}

	mu     sync.Mutex
	err    error
	closed bool

	startOnce sync.Once
	doneOnce  sync.Once
}

func NewChannel(conn net.Conn, logger *zap.Logger) *Channel {
	return &Channel{
		conn:         conn,
		r:            bufio.NewReader(conn),
		log:          logger.With(zap.String("peer", conn.RemoteAddr().String())),
		writeTimeout: DefaultWriteTimeout,
		inbox:        make(chan ngap.Message, inboxSize),
		done:         make(chan struct{}),
	}
}

// SetWriteTimeout changes the per-frame write bound. Zero disables it.
func (c *Channel) SetWriteTimeout(d time.Duration) {
	c.wmu.Lock()
	c.writeTimeout = d
	c.wmu.Unlock()
}

// SendInit writes the AMF handshake. It must precede any Send.
func (c *Channel) SendInit(msg *ngap.InitMsg) error {
	return c.write(ngap.EncodeInit(msg))
}

// RecvInit reads the AMF handshake. It must be called before Start.
func (c *Channel) RecvInit(timeout time.Duration) (ngap.InitMsg, error) {
	var msg ngap.InitMsg
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return msg, err
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}
	buf, err := Recv(c.r)
	if err != nil {
		return msg, fmt.Errorf("read init: %w", err)
	}
	err = ngap.DecodeInit(buf, &msg)
	return msg, err
}

// Start launches the reader goroutine.
func (c *Channel) Start() {
	c.startOnce.Do(func() {
		go c.readLoop()
	})
}

func (c *Channel) Send(msg ngap.Message) error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	if err := c.write(ngap.EncodeMsg(&msg)); err != nil {
		c.fail(fmt.Errorf("%w: %w", ErrChannelBroken, err))
		// a half-written frame leaves the stream unusable; closing the
		// connection also ends the reader so the owner sees the loss
		c.conn.Close()
		return fmt.Errorf("send %s: %w: %w", msg.Kind, ErrChannelClosed, err)
	}
	return nil
}

func (c *Channel) write(buf []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return Send(c.conn, buf)
}

// TryRecv returns the next queued message without blocking. The error is
// non-nil only once the channel has ended and its queue is drained.
func (c *Channel) TryRecv() (ngap.Message, bool, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return ngap.Message{}, false, c.Err()
		}
		return msg, true, nil
	default:
		return ngap.Message{}, false, nil
	}
}

// Recv blocks for the next message.
func (c *Channel) Recv(ctx context.Context) (ngap.Message, error) {
	select {
	case <-ctx.Done():
		return ngap.Message{}, ctx.Err()
	case msg, ok := <-c.inbox:
		if !ok {
			return ngap.Message{}, c.Err()
		}
		return msg, nil
	}
}

// Inbox is closed after the last message once the channel ends.
func (c *Channel) Inbox() <-chan ngap.Message {
	return c.inbox
}

func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.fail(ErrChannelClosed)
	return c.conn.Close()
}

func (c *Channel) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Channel) readLoop() {
	defer close(c.inbox)
	for {
		buf, err := Recv(c.r)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed || errors.Is(err, EOF) {
				c.fail(ErrChannelClosed)
			} else {
				c.log.Warn("channel read failed", zap.Error(err))
				c.fail(fmt.Errorf("%w: %w", ErrChannelBroken, err))
			}
			return
		}

		var msg ngap.Message
		if err := ngap.DecodeMsg(buf, &msg); err != nil {
			c.log.Debug("dropping frame", zap.Error(err))
			continue
		}

		select {
		case c.inbox <- msg:
		case <-c.done:
			return
		}
	}
}
