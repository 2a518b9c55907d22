//go:build !linux
// +build !linux

package socket

import (
	"io"
	"net"
	"os"
)

// SendFile falls back to io.Copy on platforms without a sendfile(2)
// equivalent wired up here, keeping the call signature identical across
// platforms so callers never branch on GOOS.
func SendFile(conn net.Conn, file *os.File, offset, count int64) (int64, error) {
	return io.Copy(conn, io.NewSectionReader(file, offset, count))
}

// SendFileAll sends an entire file.
func SendFileAll(conn net.Conn, file *os.File) (int64, error) {
	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return SendFile(conn, file, 0, stat.Size())
}

// CanUseSendFile reports false: this build has no zero-copy path.
func CanUseSendFile(conn net.Conn) bool { return false }
