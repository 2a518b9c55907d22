//go:build linux
// +build linux

package socket

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// epollBackend is the Linux readiness primitive: one epoll instance
// shared by every connection the loop owns, the natural extension of
// tuning_linux.go's raw setsockopt calls into readiness polling on the
// same fds.
type epollBackend struct {
	epfd int

	mu      sync.Mutex
	fdByID  map[uint64]int
	idByFd  map[int]uint64
	rawByFd map[int]*net.TCPConn // keeps the *os.File backing the fd alive
}

// NewEpollBackend creates an epoll(7) instance. Returns an error if the
// kernel call fails (e.g. too many open files already).
func NewEpollBackend() (Backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("pulsehttp/socket: epoll_create1: %w", err)
	}
	return &epollBackend{
		epfd:    fd,
		fdByID:  make(map[uint64]int),
		idByFd:  make(map[int]uint64),
		rawByFd: make(map[int]*net.TCPConn),
	}, nil
}

func eventMask(wantWrite bool) uint32 {
	mask := uint32(unix.EPOLLIN)
	if wantWrite {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func rawFd(conn net.Conn) (int, *net.TCPConn, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return 0, nil, fmt.Errorf("pulsehttp/socket: epoll backend requires a *net.TCPConn")
	}
	sc, err := tcpConn.SyscallConn()
	if err != nil {
		return 0, nil, err
	}
	var fd int
	ctrlErr := sc.Control(func(f uintptr) { fd = int(f) })
	if ctrlErr != nil {
		return 0, nil, ctrlErr
	}
	return fd, tcpConn, nil
}

func (b *epollBackend) Register(id uint64, conn net.Conn, wantWrite bool) error {
	fd, tcpConn, err := rawFd(conn)
	if err != nil {
		return err
	}
	ev := unix.EpollEvent{Events: eventMask(wantWrite), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("pulsehttp/socket: epoll_ctl add: %w", err)
	}
	b.mu.Lock()
	b.fdByID[id] = fd
	b.idByFd[fd] = id
	b.rawByFd[fd] = tcpConn
	b.mu.Unlock()
	return nil
}

func (b *epollBackend) SetWriteInterest(id uint64, wantWrite bool) error {
	b.mu.Lock()
	fd, ok := b.fdByID[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("pulsehttp/socket: unknown connection id %d", id)
	}
	ev := unix.EpollEvent{Events: eventMask(wantWrite), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("pulsehttp/socket: epoll_ctl mod: %w", err)
	}
	return nil
}

func (b *epollBackend) Deregister(id uint64) error {
	b.mu.Lock()
	fd, ok := b.fdByID[id]
	if ok {
		delete(b.fdByID, id)
		delete(b.idByFd, fd)
		delete(b.rawByFd, fd)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	// EPOLL_CTL_DEL's event argument is ignored since Linux 2.6.9 but
	// older kernels required a non-nil pointer.
	_ = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
	return nil
}

func (b *epollBackend) Wait(dst []ReadyEvent) ([]ReadyEvent, error) {
	var raw [128]unix.EpollEvent
	n, err := unix.EpollWait(b.epfd, raw[:], -1)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, fmt.Errorf("pulsehttp/socket: epoll_wait: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		id, ok := b.idByFd[fd]
		if !ok {
			continue
		}
		mask := raw[i].Events
		dst = append(dst, ReadyEvent{
			ID:       id,
			Readable: mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			Writable: mask&unix.EPOLLOUT != 0,
		})
	}
	return dst, nil
}

func (b *epollBackend) Close() error {
	return unix.Close(b.epfd)
}
