//go:build linux
// +build linux

package socket

import (
	"io"
	"net"
	"os"
	"syscall"
)

// SendFile streams count bytes of file starting at offset directly onto
// conn using the sendfile(2) syscall when conn is a *net.TCPConn,
// avoiding a userspace copy. Falls back to io.Copy for any other Conn
// type or if sendfile itself fails partway through.
func SendFile(conn net.Conn, file *os.File, offset, count int64) (int64, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return io.Copy(conn, io.NewSectionReader(file, offset, count))
	}
	rawConn, err := tcpConn.SyscallConn()
	if err != nil {
		return io.Copy(conn, io.NewSectionReader(file, offset, count))
	}

	srcFd := int(file.Fd())
	var totalWritten int64
	var sendfileErr error

	ctrlErr := rawConn.Write(func(dstFd uintptr) bool {
		currentOffset := offset
		remaining := count
		for remaining > 0 {
			chunkSize := remaining
			if chunkSize > 1<<30 {
				chunkSize = 1 << 30
			}
			n, err := syscall.Sendfile(int(dstFd), srcFd, &currentOffset, int(chunkSize))
			if err != nil {
				if err == syscall.EAGAIN || err == syscall.EINTR {
					continue
				}
				sendfileErr = err
				return false
			}
			if n == 0 {
				break
			}
			totalWritten += int64(n)
			remaining -= int64(n)
		}
		return true
	})

	if ctrlErr != nil {
		return io.Copy(conn, io.NewSectionReader(file, offset, count))
	}
	if sendfileErr != nil {
		if totalWritten > 0 {
			remaining := count - totalWritten
			if remaining > 0 {
				n, err := io.Copy(conn, io.NewSectionReader(file, offset+totalWritten, remaining))
				totalWritten += n
				if err != nil {
					return totalWritten, err
				}
			}
			return totalWritten, nil
		}
		return io.Copy(conn, io.NewSectionReader(file, offset, count))
	}
	return totalWritten, nil
}

// SendFileAll sends an entire file using sendfile.
func SendFileAll(conn net.Conn, file *os.File) (int64, error) {
	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return SendFile(conn, file, 0, stat.Size())
}

// CanUseSendFile reports whether conn is a type SendFile can zero-copy.
func CanUseSendFile(conn net.Conn) bool {
	_, ok := conn.(*net.TCPConn)
	return ok
}
