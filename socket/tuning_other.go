//go:build !linux && !darwin
// +build !linux,!darwin

package socket

func applyPlatformOptions(fd int, cfg *Config) {}

func applyListenerOptions(fd int, cfg *Config) error { return nil }

// SetQuickAck is a no-op on platforms with no TCP_QUICKACK equivalent.
func SetQuickAck(fd int) error { return nil }
