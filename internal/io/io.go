package io

import (
	"errors"
	"io"
	"net"
)

var EOF error = io.EOF

const maxFrameLen = 0xFFFF

var (
	errEmptyFrame    = errors.New("msg length of buffer is zero")
	errFrameTooLarge = errors.New("msg length exceeds frame limit")
)

// Send writes one length-prefixed frame. Header and payload go out in a
// single Write so message-oriented transports see exactly one message.
func Send(conn net.Conn, msg []byte) error {
	if len(msg) == 0 {
		return errEmptyFrame
	}
	if len(msg) > maxFrameLen {
		return errFrameTooLarge
	}
	msgLen := uint16(len(msg))
	buf := make([]byte, 2+len(msg))
	buf[0] = uint8(msgLen >> 8)
	buf[1] = uint8(msgLen & 0xff)
	copy(buf[2:], msg)
	_, err := conn.Write(buf)
	return err
}

// Recv reads one length-prefixed frame.
func Recv(r io.Reader) ([]byte, error) {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	msgLen := uint16(buf[1]) | uint16(buf[0])<<8
	if msgLen < 1 {
		return nil, errEmptyFrame
	}
	buf = make([]byte, msgLen)
	_, err := io.ReadFull(r, buf)
	return buf, err
}
