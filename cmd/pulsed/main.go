// Command pulsed is a minimal binary embedding the pulsehttp server: it
// wires flags to a server.Config, serves a couple of example routes,
// and shuts down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsehttp/pulsehttp/message"
	"github.com/pulsehttp/pulsehttp/router"
	"github.com/pulsehttp/pulsehttp/server"
	"github.com/pulsehttp/pulsehttp/writer"
)

func main() {
	var (
		hostname   = flag.String("hostname", "", "interface to bind (\"\" binds all)")
		port       = flag.Int("port", 8080, "port to listen on")
		backlog    = flag.Int("backlog", 128, "listen(2) backlog")
		shutdownTO = flag.Duration("shutdown-timeout", 10*time.Second, "grace period for in-flight connections on shutdown")
	)
	flag.Parse()

	cfg := server.Config{
		Hostname: *hostname,
		Port:     *port,
		Backlog:  *backlog,
		Network:  "tcp",
		Routes:   routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop, err := server.NewLoop(ctx, cfg)
	if err != nil {
		log.Fatalf("pulsed: %v", err)
	}
	log.Printf("pulsed: listening on %s", loop.Addr())

	go serveMetrics(ctx, loop)

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()

	select {
	case err := <-runErr:
		if err != nil && ctx.Err() == nil {
			log.Fatalf("pulsed: loop exited: %v", err)
		}
	case <-ctx.Done():
		log.Printf("pulsed: shutting down (grace period %s)", *shutdownTO)
		shutCtx, cancel := context.WithTimeout(context.Background(), *shutdownTO)
		defer cancel()
		if err := loop.Shutdown(shutCtx); err != nil {
			log.Printf("pulsed: shutdown: %v", err)
		}
		<-runErr
	}
}

// routes returns the example routing table pulsed serves out of the
// box: a health check and an echo endpoint, enough to exercise Router,
// Connection, and the OutputQueue end to end against a real socket.
func routes() map[string]router.HandlerFactory {
	return map[string]router.HandlerFactory{
		"/healthz": router.NewBufferedHandler(func(req *message.Message, body []byte, sender router.Sender) error {
			sender.Send(writer.ComposeResponse(req.Protocol, "200", "OK", [][2]string{{"Content-Type", "text/plain"}}, []byte("ok")))
			return nil
		}),
		"/echo": router.NewBufferedHandler(func(req *message.Message, body []byte, sender router.Sender) error {
			headers := [][2]string{{"Content-Type", "application/octet-stream"}}
			sender.Send(writer.ComposeResponse(req.Protocol, "200", "OK", headers, body))
			return nil
		}),
	}
}
