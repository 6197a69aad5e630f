package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cellarena/protocol"
	"cellarena/worldstate"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

// Keepalive and backpressure timings for a connection's read/ping/publish
// loops.
const (
	pubResolution  = 0
	pingResolution = 20 * time.Second
	pongWait       = pingResolution * 4
	readDeadline   = time.Second
	writeDeadline  = time.Second
)

// ErrPongDeadlineExceeded is returned from pingPong when the peer stops
// responding to pings, tearing down the whole connection group.
var ErrPongDeadlineExceeded = errors.New("httpapi: client disconnect, pong deadline exceeded")

// ErrSockCongestion indicates too many concurrent waiters on the socket.
var ErrSockCongestion = errors.New("httpapi: socket operation failed due to congestion")

// websock serializes reads and writes to a single websocket connection, so
// the gameplay publish loop and an out-of-band eliminate/error push never
// race on the same connection.
type websock struct {
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWebsock(ws *websocket.Conn) *websock {
	return &websock{readSem: make(chan struct{}, 1), writeSem: make(chan struct{}, 1), ws: ws}
}

func (s *websock) Read(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case s.readSem <- struct{}{}:
		defer func() { <-s.readSem }()
		return fn(s.ws)
	case <-time.After(readDeadline):
		return ErrSockCongestion
	}
}

func (s *websock) Write(ctx context.Context, fn func(*websocket.Conn) error) error {
	select {
	case <-ctx.Done():
		return nil
	case s.writeSem <- struct{}{}:
		defer func() { <-s.writeSem }()
		return fn(s.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}

// Send implements session.Sink, letting the connection hub push
// out-of-band frames (eliminated, error) without racing the publish loop.
func (s *websock) Send(message any) error {
	return s.Write(context.Background(), func(ws *websocket.Conn) error {
		if err := ws.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
			return err
		}
		return ws.WriteJSON(message)
	})
}

// Close implements session.Sink: it sends a close frame with the given
// code/reason and closes the underlying connection.
func (s *websock) Close(code int, reason string) error {
	select {
	case s.writeSem <- struct{}{}:
	case <-time.After(writeDeadline):
	}
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	return s.ws.Close()
}

// gameConn drives one player's connection for the lifetime of a world
// session: reading steering/split commands, publishing snapshots, and
// keeping the peer alive with pings.
type gameConn struct {
	sock      *websock
	rootCtx   context.Context
	manager   *worldstate.Manager
	worldID   string
	playerID  string
	snapshots <-chan worldstate.Snapshot
}

// Sync runs the read, ping, and publish loops concurrently and returns when
// any of them errors or the peer disconnects.
func (c *gameConn) Sync() error {
	group, ctx := errgroup.WithContext(c.rootCtx)
	group.Go(func() error { return c.readMessages(ctx) })
	group.Go(func() error { return c.pingPong(ctx) })
	group.Go(func() error { return c.publish(ctx) })
	return group.Wait()
}

// readMessages decodes inbound frames and dispatches set_target/split to
// the world manager. Malformed frames are dropped; the connection stays
// open. Read errors are permanent and tear down the whole group.
func (c *gameConn) readMessages(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var raw []byte
		err := c.sock.Read(ctx, func(ws *websocket.Conn) (readErr error) {
			_, raw, readErr = ws.ReadMessage()
			return
		})
		if err != nil {
			return err
		}
		if raw == nil {
			continue
		}

		msg, err := protocol.DecodeInbound(raw)
		if err != nil {
			continue
		}
		switch m := msg.(type) {
		case protocol.SetTarget:
			if m.Valid {
				c.manager.SetTarget(c.worldID, c.playerID, worldstate.Vec2{X: m.Target[0], Y: m.Target[1]})
			}
		case protocol.Split:
			c.manager.SplitPlayer(c.worldID, c.playerID)
		}
	}
}

func (c *gameConn) pingPong(ctx context.Context) error {
	pong := make(chan struct{})
	defer close(pong)
	c.sock.ws.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		case <-ctx.Done():
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			err := c.sock.Write(ctx, func(ws *websocket.Conn) error {
				return ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline))
			})
			if err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

// publish forwards every snapshot delivered on the subscription as a world
// frame. pubResolution is zero: a world's own tick rate already governs how
// often snapshots arrive, so no further throttling is applied here.
func (c *gameConn) publish(ctx context.Context) error {
	lastSync := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-c.snapshots:
			if !ok {
				return nil
			}
			if time.Since(lastSync) < pubResolution {
				continue
			}
			lastSync = time.Now()

			err := c.sock.Write(ctx, func(ws *websocket.Conn) (writeErr error) {
				if writeErr = ws.SetWriteDeadline(time.Now().Add(writeDeadline)); writeErr != nil {
					return fmt.Errorf("set write deadline: %w", writeErr)
				}
				return ws.WriteJSON(protocol.NewWorld(snapshot))
			})
			if err != nil {
				return err
			}
		}
	}
}
