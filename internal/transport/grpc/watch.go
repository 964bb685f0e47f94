package grpcx

import (
	"context"
	"sync"

	"github.com/cwrk-planet/karaoke-service/internal/transport/ws"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Watcher is the room connection registry shared with the WebSocket endpoint.
type Watcher interface {
	Add(c ws.Conn)
	Remove(c ws.Conn)
}

// watchBuffer ограничивает очередь событий одного подписчика
const watchBuffer = 64

// WatchRoom streams the room snapshot followed by every room event until the
// client goes away or the server shuts down, using the WebSocket message
// envelope. Only room members may watch.
func (s *Server) WatchRoom(in *RoomRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	c, err := s.userFromMD(ctx)
	if err != nil {
		return err
	}
	if s.watcher == nil {
		return status.Error(codes.Unimplemented, "room events disabled")
	}
	if err := s.ctl.RequireMember(ctx, in.RoomID, c.userID); err != nil {
		return mapErr(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sc := &streamConn{
		roomID: in.RoomID,
		userID: c.userID,
		out:    make(chan ws.Message, watchBuffer),
		cancel: cancel,
	}

	// подписываемся до чтения snapshot: события копятся в очереди
	s.watcher.Add(sc)
	defer s.watcher.Remove(sc)
	snap, err := s.ctl.Snapshot(ctx, in.RoomID)
	if err != nil {
		return mapErr(err)
	}
	if err := stream.SendMsg(&ws.Message{Type: ws.TypeSnapshot, Payload: mapSnapshot(snap)}); err != nil {
		return err
	}

	for {
		select {
		case msg := <-sc.out:
			if err := stream.SendMsg(&msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return sc.closeErr()
		case <-s.done:
			return nil
		}
	}
}

// streamConn adapts a WatchRoom stream to ws.Conn. Send only enqueues; the
// WatchRoom loop is the only writer of the stream.
type streamConn struct {
	roomID string
	userID string
	out    chan ws.Message
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (c *streamConn) Send(msg ws.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	select {
	case c.out <- msg:
		return nil
	default:
		// клиент не успевает читать: отключаем
		c.err = status.Error(codes.ResourceExhausted, "room watcher is too slow")
		c.cancel()
		return c.err
	}
}

func (c *streamConn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *streamConn) Close() error {
	c.cancel()
	return nil
}

func (c *streamConn) UserID() string { return c.userID }
func (c *streamConn) RoomID() string { return c.roomID }
