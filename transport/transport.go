// Package transport implements the syscall transport: the pair of
// unidirectional SOCK_DGRAM Unix-domain endpoints a kernel process and one
// app process use to exchange Syscall/KernelReturn/allow-region frames.
//
// Each record is exactly one datagram; there is no framing within a
// datagram. The rx endpoint is bound to a filesystem path owned by the
// kernel. The tx endpoint is an unbound sender that is lazily connected to
// the app's rx path on first use and reconnected if the peer is lost.
//
// The endpoints are built directly on golang.org/x/sys/unix rather than
// net.UnixConn so that a send/recv size mismatch is always observable as
// an exact byte count, matching the host-emulation wire contract.
package transport

import (
	"os"

	"golang.org/x/sys/unix"

	"tockhost/hosterrors"
)

// Frame is any wire type that can serialize itself to a fixed-size byte
// slice.
type Frame interface {
	Encode() []byte
}

// Decodable is any wire type that can populate itself from a fixed-size
// byte slice.
type Decodable interface {
	Decode([]byte) error
}

// SyscallTransport is one process's view of the syscall transport: a bound
// receive socket and a lazily-connected send socket.
type SyscallTransport struct {
	rxPath string
	txPath string

	rxFD int
	txFD int
}

// Open binds rxPath for receiving and prepares an unbound sender that will
// be connected to txPath on first send.
func Open(rxPath, txPath string) (*SyscallTransport, error) {
	rxFD, err := bindDatagram(rxPath)
	if err != nil {
		return nil, hosterrors.Wrap(err, hosterrors.IOError, "bind rx socket")
	}

	txFD, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		unix.Close(rxFD)
		return nil, hosterrors.Wrap(err, hosterrors.IOError, "create tx socket")
	}

	return &SyscallTransport{
		rxPath: rxPath,
		txPath: txPath,
		rxFD:   rxFD,
		txFD:   txFD,
	}, nil
}

// RXPath returns the path the receive socket is bound to.
func (t *SyscallTransport) RXPath() string { return t.rxPath }

// TXPath returns the path the send socket connects to.
func (t *SyscallTransport) TXPath() string { return t.txPath }

// Close releases both sockets and removes the bound rx path.
func (t *SyscallTransport) Close() error {
	unix.Close(t.txFD)
	err := unix.Close(t.rxFD)
	os.Remove(t.rxPath)
	return err
}

// Send serializes data and sends it in one datagram. id identifies the
// logical recipient process for transports that multiplex several
// processes over one socket; it is otherwise unused here.
func (t *SyscallTransport) Send(id int, data Frame) error {
	return t.SendBytes(id, data.Encode())
}

// Recv reads one datagram into buf (which must be sized exactly for the
// expected frame) and decodes it into out.
func (t *SyscallTransport) Recv(buf []byte, out Decodable) error {
	if err := recvExact(t.rxFD, buf); err != nil {
		return err
	}
	return out.Decode(buf)
}

// SendBytes sends a raw byte payload in one datagram.
func (t *SyscallTransport) SendBytes(_ int, data []byte) error {
	sent, err := unix.Write(t.txFD, data)
	if err != nil {
		return hosterrors.Wrap(err, hosterrors.IOError, "send")
	}
	if sent != len(data) {
		return hosterrors.NewPartialMessage("send", len(data), sent)
	}
	return nil
}

// RecvBytes reads one datagram into buf. The number of bytes received must
// match len(buf) exactly.
func (t *SyscallTransport) RecvBytes(buf []byte) error {
	return recvExact(t.rxFD, buf)
}

// recvExact reads one datagram into buf, requesting MSG_TRUNC so an
// oversized datagram is reported by its true length rather than silently
// truncated to len(buf) the way a plain read() would deliver it.
func recvExact(fd int, buf []byte) error {
	n, _, recvflags, _, err := unix.Recvmsg(fd, buf, nil, unix.MSG_TRUNC)
	if err != nil {
		return hosterrors.Wrap(err, hosterrors.IOError, "recv")
	}
	if recvflags&unix.MSG_TRUNC != 0 {
		return hosterrors.NewPartialMessage("recv", len(buf), n)
	}
	if n != len(buf) {
		return hosterrors.NewPartialMessage("recv", len(buf), n)
	}
	return nil
}

// TxConnectIfNeeded idempotently ensures the send socket is connected to
// the peer's rx path, reconnecting if the peer was previously lost.
func (t *SyscallTransport) TxConnectIfNeeded() error {
	if _, err := unix.Getpeername(t.txFD); err == nil {
		return nil
	}

	if err := unix.Connect(t.txFD, &unix.SockaddrUnix{Name: t.txPath}); err != nil {
		return hosterrors.Wrap(err, hosterrors.IOError, "connect tx socket")
	}
	return nil
}

func bindDatagram(path string) (int, error) {
	os.Remove(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, err
	}

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}
