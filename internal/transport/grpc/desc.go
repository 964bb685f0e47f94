package grpcx

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "karaoke.v1.RoomSession"

// roomSession is the handler type checked by grpc.Server.RegisterService.
type roomSession interface {
	WatchRoom(in *RoomRequest, stream grpc.ServerStream) error
}

// ServiceDesc describes karaoke.v1.RoomSession. There is no .proto: requests
// and responses are the structs in messages.go carried by the JSON codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*roomSession)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateRoom", (*Server).CreateRoom),
		unary("GetRoom", (*Server).GetRoom),
		unary("GetRoomByCode", (*Server).GetRoomByCode),
		unary("EndRoom", (*Server).EndRoom),
		unary("JoinRoom", (*Server).JoinRoom),
		unary("LeaveRoom", (*Server).LeaveRoom),
		unary("GetStatus", (*Server).GetStatus),
		unary("ListParticipants", (*Server).ListParticipants),
		unary("ListPending", (*Server).ListPending),
		unary("Approve", (*Server).Approve),
		unary("Deny", (*Server).Deny),
		unary("Kick", (*Server).Kick),
		unary("Reapprove", (*Server).Reapprove),
		unary("SubmitSong", (*Server).SubmitSong),
		unary("GetQueue", (*Server).GetQueue),
		unary("GetHistory", (*Server).GetHistory),
		unary("Advance", (*Server).Advance),
		unary("EnsurePlaying", (*Server).EnsurePlaying),
		unary("SkipSong", (*Server).SkipSong),
		unary("PlaybackError", (*Server).PlaybackError),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchRoom",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(RoomRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(roomSession).WatchRoom(in, stream)
			},
		},
	},
}

// FullMethod returns the gRPC method path for name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, fn func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if interceptor == nil {
				return fn(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(s, ctx, req.(*Req))
			})
		},
	}
}
