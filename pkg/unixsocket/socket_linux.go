// Package unixsocket wraps a SOCK_SEQPACKET unix socket that carries gob
// encoded values together with passed fds and sender credentials.
package unixsocket

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
)

// oob size default to page size
const oobSize = 4 << 10

// one datagram holds one encoded value
const bufferSize = 16 << 10

var (
	oobPool = sync.Pool{
		New: func() any { return make([]byte, oobSize) },
	}
	bufferPool = sync.Pool{
		New: func() any { return make([]byte, bufferSize) },
	}
)

// Socket wraps a unix socket connection
type Socket struct {
	*net.UnixConn
}

// Msg is the out of band part of a message
type Msg struct {
	Fds  []int          // unix rights
	Cred *syscall.Ucred // unix credential
}

// NewSocket wraps an existing SOCK_SEQPACKET socket fd created by
// socketpair and marks it close on exec
func NewSocket(fd int) (*Socket, error) {
	if fd < 0 {
		return nil, fmt.Errorf("unixsocket: %d is not a valid fd", fd)
	}
	syscall.CloseOnExec(fd)

	file := os.NewFile(uintptr(fd), "unix-socket")
	if file == nil {
		return nil, fmt.Errorf("unixsocket: %d is not a valid fd", fd)
	}
	defer file.Close()

	conn, err := net.FileConn(file)
	if err != nil {
		return nil, fmt.Errorf("unixsocket: %w", err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("unixsocket: %d is not a unix socket", fd)
	}
	return &Socket{UnixConn: unixConn}, nil
}

// NewSocketPair creates a connected SOCK_SEQPACKET pair
func NewSocketPair() (*Socket, *Socket, error) {
	fd, err := syscall.Socketpair(syscall.AF_LOCAL, syscall.SOCK_SEQPACKET|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("unixsocket: socketpair: %w", err)
	}
	ins, err := NewSocket(fd[0])
	if err != nil {
		syscall.Close(fd[0])
		syscall.Close(fd[1])
		return nil, nil, err
	}
	outs, err := NewSocket(fd[1])
	if err != nil {
		ins.Close()
		syscall.Close(fd[1])
		return nil, nil, err
	}
	return ins, outs, nil
}

// File returns a dup of the underlying fd for handing to a child process
func (s *Socket) File() (*os.File, error) {
	return s.UnixConn.File()
}

// SetPassCred enables receiving SCM_CREDENTIALS on the socket
func (s *Socket) SetPassCred(option int) error {
	sysconn, err := s.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := sysconn.Control(func(fd uintptr) {
		serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_PASSCRED, option)
	}); err != nil {
		return err
	}
	return serr
}

// SendMsg sends b with the fds and credential of m
func (s *Socket) SendMsg(b []byte, m *Msg) error {
	var oob []byte
	if m != nil {
		if len(m.Fds) > 0 {
			oob = append(oob, syscall.UnixRights(m.Fds...)...)
		}
		if m.Cred != nil {
			oob = append(oob, syscall.UnixCredentials(m.Cred)...)
		}
	}
	_, _, err := s.WriteMsgUnix(b, oob, nil)
	return err
}

// RecvMsg receives one datagram into b. Passed fds are owned by the caller.
func (s *Socket) RecvMsg(b []byte) (int, *Msg, error) {
	oob := oobPool.Get().([]byte)
	defer oobPool.Put(oob)

	n, oobn, _, _, err := s.ReadMsgUnix(b, oob)
	if err != nil {
		return 0, nil, err
	}
	msgs, err := syscall.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return 0, nil, err
	}
	msg, err := parseMsg(msgs)
	if err != nil {
		return 0, nil, err
	}
	return n, msg, nil
}

func parseMsg(msgs []syscall.SocketControlMessage) (msg *Msg, err error) {
	msg = new(Msg)
	defer func() {
		if err != nil {
			for _, f := range msg.Fds {
				syscall.Close(f)
			}
		}
	}()
	for _, m := range msgs {
		if m.Header.Level != syscall.SOL_SOCKET {
			continue
		}
		switch m.Header.Type {
		case syscall.SCM_CREDENTIALS:
			cred, err := syscall.ParseUnixCredentials(&m)
			if err != nil {
				return msg, err
			}
			msg.Cred = cred

		case syscall.SCM_RIGHTS:
			fds, err := syscall.ParseUnixRights(&m)
			if err != nil {
				return msg, err
			}
			msg.Fds = append(msg.Fds, fds...)
		}
	}
	return msg, nil
}

// Send gob encodes v into a single datagram with the out of band part m
func (s *Socket) Send(v any, m *Msg) error {
	buf := bufferPool.Get().([]byte)
	defer bufferPool.Put(buf)

	w := bytes.NewBuffer(buf[:0])
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("unixsocket: encode: %w", err)
	}
	if err := s.SendMsg(w.Bytes(), m); err != nil {
		return fmt.Errorf("unixsocket: send: %w", err)
	}
	return nil
}

// Recv receives one datagram and gob decodes it into v
func (s *Socket) Recv(v any) (*Msg, error) {
	buf := bufferPool.Get().([]byte)
	defer bufferPool.Put(buf)

	n, msg, err := s.RecvMsg(buf)
	if errors.Is(err, io.EOF) || (err == nil && n == 0) {
		return msg, fmt.Errorf("unixsocket: recv: peer %w", os.ErrClosed)
	}
	if err != nil {
		return nil, fmt.Errorf("unixsocket: recv: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(buf[:n])).Decode(v); err != nil {
		return msg, fmt.Errorf("unixsocket: decode: %w", err)
	}
	return msg, nil
}
