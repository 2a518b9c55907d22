package server

import (
	"reflect"

	"github.com/pulsehttp/pulsehttp/router"
	"github.com/pulsehttp/pulsehttp/socket"
)

// Config is everything Listen needs to bind a listener and drive the
// event loop: the bind address, the routing table, and (optionally) a
// caller-supplied readiness backend for platforms where the
// auto-detected default isn't what's wanted.
type Config struct {
	Hostname string // "" binds all interfaces
	Port     int    // 0 picks an ephemeral port
	Backlog  int    // listen(2) backlog
	Network  string // "tcp", "tcp4", "tcp6"

	Routes      map[string]router.HandlerFactory
	FileHandler router.HandlerFactory // fallback when no route matches

	Tuning           *socket.Config
	ReadinessBackend socket.Backend // nil: auto-detected per platform
}

// DefaultConfig mirrors the defaults a bare Config{} gets once merged.
// Port defaults to 0 (an ephemeral port), the same as Go's own
// net.Listen("tcp", ":0") convention, rather than a fixed number — a
// mergeConfigs field can't tell "left unset" from "explicitly zeroed",
// so the only unambiguous default for Port is the one whose zero value
// is itself meaningful.
func DefaultConfig() Config {
	return Config{
		Hostname: "",
		Port:     0,
		Backlog:  128,
		Network:  "tcp",
		Routes:   map[string]router.HandlerFactory{},
		Tuning:   socket.DefaultConfig(),
	}
}

// NewConfig merges options over the library defaults, leaving any field
// options leaves at its zero value untouched. Passing nil returns
// DefaultConfig() unchanged.
func NewConfig(options *Config) Config {
	def := DefaultConfig()
	if options == nil {
		return def
	}
	return mergeConfigs(def, *options)
}

// mergeConfigs overlays any field of b that isn't its zero value onto a,
// the same one-struct-wins-per-field idiom curol-go-net's server config
// uses, generalized to reflect.Value.IsZero so it also works for the
// map/func/interface fields a literal `!=` comparison would panic on.
func mergeConfigs(a, b Config) Config {
	va := reflect.ValueOf(&a).Elem()
	vb := reflect.ValueOf(&b).Elem()

	for i := 0; i < va.NumField(); i++ {
		vbField := vb.Field(i)
		if !vbField.IsZero() {
			va.Field(i).Set(vbField)
		}
	}
	return a
}
