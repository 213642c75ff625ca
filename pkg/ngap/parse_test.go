package ngap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMsg(t *testing.T) {
	msg := Message{
		Kind:        RelayedRegistrationRequest,
		Flags:       FlagRandomValue,
		TerminalID:  199,
		PermanentID: 452040000000001,
	}
	buf := EncodeMsg(&msg)
	require.Len(t, buf, MsgLen)
	assert.Equal(t, byte(0x12), buf[0])
	assert.Equal(t, byte(0x01), buf[1])
	assert.Equal(t, []byte{0x00, 0xc7}, buf[2:4])

	var got Message
	require.NoError(t, DecodeMsg(buf, &got))
	assert.Equal(t, msg, got)
}

func TestDecodeMsgErrors(t *testing.T) {
	var msg Message
	err := DecodeMsg(make([]byte, 8), &msg)
	assert.ErrorIs(t, err, ErrShortBuffer)

	buf := make([]byte, MsgLen)
	buf[0] = 0x42
	err = DecodeMsg(buf, &msg)
	assert.ErrorIs(t, err, ErrProtocolViolation)

	buf[0] = byte(Init)
	err = DecodeMsg(buf, &msg)
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestInitHandshake(t *testing.T) {
	buf := EncodeInit(&InitMsg{AmfID: 3, Capacity: 70})
	require.Len(t, buf, InitLen)

	var got InitMsg
	require.NoError(t, DecodeInit(buf, &got))
	assert.Equal(t, InitMsg{AmfID: 3, Capacity: 70}, got)

	term := EncodeMsg(&Message{Kind: Termination})
	assert.ErrorIs(t, DecodeInit(term, &got), ErrProtocolViolation)
}

func TestTemporaryIDOwner(t *testing.T) {
	tmp := TemporaryID(2, 452040000000001)
	assert.Equal(t, 2, OwnerAMF(tmp))
	assert.Equal(t, uint64(452040000000001&0xFFFFFF), tmp&0xFFFFFF)
	assert.Equal(t, tmp, tmp&DownlinkIDMask)

	for amf := 0; amf < MaxAMF; amf += 37 {
		for _, perm := range []uint64{0, 1, 0xFFFFFF, 452040000000199} {
			assert.Equal(t, amf, OwnerAMF(TemporaryID(amf, perm)), "amf %d perm %d", amf, perm)
		}
	}
}

func TestMsgTypeString(t *testing.T) {
	assert.Equal(t, "PagingNotificationOutbound", PagingNotificationOutbound.String())
	assert.Equal(t, "MsgType(0x42)", MsgType(0x42).String())
}
