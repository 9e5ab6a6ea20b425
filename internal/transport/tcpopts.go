package transport

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const keepAlivePeriod = 60 * time.Second

// SetTCPOptions disables Nagle and turns on keepalive for a TCP connection.
func SetTCPOptions(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("unknown connection type %T", conn)
	}
	if err := tc.SetNoDelay(true); err != nil {
		return err
	}
	if err := tc.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
		return err
	}
	return tc.SetKeepAlive(true)
}

// SetTrafficClass sets the IPv4 TOS and IPv6 traffic class on conn. Only
// the family the socket actually uses has to succeed.
func SetTrafficClass(conn net.Conn, class int) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("unknown connection type %T", conn)
	}
	e1 := ipv4.NewConn(tc).SetTOS(class)
	e2 := ipv6.NewConn(tc).SetTrafficClass(class)
	if e1 != nil && e2 != nil {
		return e1
	}
	return nil
}
