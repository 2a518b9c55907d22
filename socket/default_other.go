//go:build !linux
// +build !linux

package socket

// NewDefaultBackend returns the best readiness backend for this
// platform: the portable goroutine-per-connection poll adapter, since
// no epoll/kqueue backend is wired up here for non-Linux builds.
func NewDefaultBackend() (Backend, error) {
	return NewPollBackend()
}
