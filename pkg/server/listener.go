package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/diskwarden/diskwarden/pkg/api"
	"github.com/diskwarden/diskwarden/pkg/utils"
)

const (
	// DefaultEndpoint is the reference deployment address.
	DefaultEndpoint = "tcp://0.0.0.0:5555"

	// DefaultRequestDelay throttles the request loop: the listener
	// sleeps this long after every processed request.
	DefaultRequestDelay = 10 * time.Millisecond
)

// Listener owns the daemon endpoint. It admits one connection at a
// time and one request at a time: a request is fully processed and
// answered before the next frame is read.
type Listener struct {
	endpoint   string
	dispatcher *Dispatcher
	delay      time.Duration
}

func NewListener(endpoint string, d *Dispatcher, delay time.Duration) *Listener {
	return &Listener{
		endpoint:   endpoint,
		dispatcher: d,
		delay:      delay,
	}
}

// Serve binds the endpoint and processes connections until ctx is
// cancelled. Bind and accept failures are fatal and returned; errors
// on an established connection only end that connection.
func (l *Listener) Serve(ctx context.Context) error {
	ln, cleanup, err := utils.ListenEndpoint(l.endpoint)
	if err != nil {
		return fmt.Errorf("bind %s: %v", l.endpoint, err)
	}
	defer cleanup()
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.WithField("endpoint", l.endpoint).Info("Listening for disk operations")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Listener shut down")
				return nil
			}
			return fmt.Errorf("accept on %s: %v", l.endpoint, err)
		}
		l.serveConn(ctx, conn)
	}
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	logger := log.WithField("remote", conn.RemoteAddr().String())
	logger.Debug("Client connected")

	for {
		raw, err := api.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("Client disconnected")
			} else if ctx.Err() == nil {
				logger.WithError(err).Info("Closing connection after a read failure")
			}
			return
		}

		reply, ok := l.dispatcher.Handle(ctx, raw)
		if ok {
			if err := api.WriteFrame(conn, reply); err != nil {
				logger.WithError(err).Info("Closing connection after a write failure")
				return
			}
		}

		if l.delay > 0 {
			time.Sleep(l.delay)
		}
		if ctx.Err() != nil {
			return
		}
	}
}
