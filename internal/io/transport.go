package io

import (
	"context"
	"fmt"
	"net"

	"github.com/ishidawataru/sctp"
)

const (
	TransportTCP  = "tcp"
	TransportSCTP = "sctp"
)

func Listen(transport, addr string) (net.Listener, error) {
	switch transport {
	case TransportTCP:
		return net.Listen("tcp", addr)
	case TransportSCTP:
		laddr, err := sctp.ResolveSCTPAddr("sctp", addr)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", addr, err)
		}
		ln, err := sctp.ListenSCTP("sctp", laddr)
		if err != nil {
			return nil, err
		}
		return ln, nil
	}
	return nil, fmt.Errorf("unknown transport %q", transport)
}

func Dial(ctx context.Context, transport, addr string) (net.Conn, error) {
	switch transport {
	case TransportTCP:
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	case TransportSCTP:
		raddr, err := sctp.ResolveSCTPAddr("sctp", addr)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", addr, err)
		}
		conn, err := sctp.DialSCTP("sctp", nil, raddr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return nil, fmt.Errorf("unknown transport %q", transport)
}
