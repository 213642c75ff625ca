package ngap

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MsgLen is the encoded size of a Message record.
	MsgLen = 20
	// InitLen is the encoded size of the Init handshake.
	InitLen = 9
)

var (
	ErrShortBuffer       = errors.New("buffer too short for message")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrUnknownTerminal   = errors.New("unknown terminal")
)

// EncodeMsg appends the wire form of msg to a fresh buffer.
func EncodeMsg(msg *Message) []byte {
	buf := make([]byte, MsgLen)
	buf[0] = byte(msg.Kind)
	buf[1] = byte(msg.Flags)
	binary.BigEndian.PutUint16(buf[2:4], msg.TerminalID)
	binary.BigEndian.PutUint64(buf[4:12], msg.PermanentID)
	binary.BigEndian.PutUint64(buf[12:20], msg.TemporaryID)
	return buf
}

func DecodeMsg(buf []byte, msg *Message) error {
	if len(buf) < MsgLen {
		return fmt.Errorf("decode message (%d bytes): %w", len(buf), ErrShortBuffer)
	}
	kind := MsgType(buf[0])
	if !kind.Valid() {
		return fmt.Errorf("decode message kind %s: %w", kind, ErrProtocolViolation)
	}
	msg.Kind = kind
	msg.Flags = Flags(buf[1])
	msg.TerminalID = binary.BigEndian.Uint16(buf[2:4])
	msg.PermanentID = binary.BigEndian.Uint64(buf[4:12])
	msg.TemporaryID = binary.BigEndian.Uint64(buf[12:20])
	return nil
}

func EncodeInit(msg *InitMsg) []byte {
	buf := make([]byte, InitLen)
	buf[0] = byte(Init)
	binary.BigEndian.PutUint32(buf[1:5], uint32(msg.AmfID))
	binary.BigEndian.PutUint32(buf[5:9], uint32(msg.Capacity))
	return buf
}

func DecodeInit(buf []byte, msg *InitMsg) error {
	if len(buf) < InitLen {
		return fmt.Errorf("decode init (%d bytes): %w", len(buf), ErrShortBuffer)
	}
	if MsgType(buf[0]) != Init {
		return fmt.Errorf("expected %s, got %s: %w", Init, MsgType(buf[0]), ErrProtocolViolation)
	}
	msg.AmfID = int32(binary.BigEndian.Uint32(buf[1:5]))
	msg.Capacity = int32(binary.BigEndian.Uint32(buf[5:9]))
	return nil
}
