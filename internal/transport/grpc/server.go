package grpcx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
	"github.com/cwrk-planet/karaoke-service/internal/repository"
	"github.com/cwrk-planet/karaoke-service/internal/security"
	"github.com/cwrk-planet/karaoke-service/internal/service"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	mdAuthorization = "authorization"
	mdUserID        = "x-user-id"
	mdUserName      = "x-user-name"
)

type TokenVerifier interface {
	ParseAndValidate(token string) (*security.AccessClaims, error)
}

type Server struct {
	ctl      *service.Controller
	verifier TokenVerifier
	watcher  Watcher

	done     chan struct{}
	doneOnce sync.Once
}

// NewServer builds the karaoke.v1.RoomSession implementation. verifier and
// watcher may be nil: without a verifier the caller is taken from x-user-id,
// without a watcher WatchRoom is unavailable.
func NewServer(ctl *service.Controller, verifier TokenVerifier, watcher Watcher) *Server {
	return &Server{ctl: ctl, verifier: verifier, watcher: watcher, done: make(chan struct{})}
}

// Shutdown ends every open WatchRoom stream so that GracefulStop can return.
func (s *Server) Shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

func Register(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&ServiceDesc, s)
}

// -------- helpers --------

type caller struct {
	userID string
	name   string
}

func (s *Server) userFromMD(ctx context.Context) (caller, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return caller{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	// Authorization: Bearer <access_token>
	auth := first(md.Get(mdAuthorization))
	if auth == "" {
		return caller{}, status.Error(codes.Unauthenticated, "missing authorization")
	}
	if !strings.HasPrefix(strings.ToLower(auth), "bearer ") || len(auth) <= 7 {
		return caller{}, status.Error(codes.Unauthenticated, "invalid authorization")
	}
	token := strings.TrimSpace(auth[7:])

	if s.verifier != nil {
		claims, err := s.verifier.ParseAndValidate(token)
		if err != nil {
			return caller{}, status.Error(codes.Unauthenticated, "invalid token")
		}
		return caller{userID: claims.Subject, name: claims.Name}, nil
	}

	c := caller{userID: first(md.Get(mdUserID)), name: first(md.Get(mdUserName))}
	if c.userID == "" {
		return caller{}, status.Error(codes.Unauthenticated, "missing x-user-id")
	}
	return c, nil
}

// requireMember authenticates the caller and checks they have a record in the room.
func (s *Server) requireMember(ctx context.Context, roomID string) error {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return err
	}
	return mapErr(s.ctl.RequireMember(ctx, roomID, c.userID))
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return strings.TrimSpace(ss[0])
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case domain.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrNotApproved):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrRoomInactive):
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.IsRetryable(err):
		return status.Error(codes.Unavailable, "store unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// -------- rooms --------

func (s *Server) CreateRoom(ctx context.Context, in *CreateRoomRequest) (*Room, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	hostName := in.HostName
	if hostName == "" {
		hostName = c.name
	}
	room, err := s.ctl.CreateRoom(ctx, c.userID, hostName, in.Name)
	if err != nil {
		return nil, mapErr(err)
	}
	return mapRoom(room), nil
}

func (s *Server) GetRoom(ctx context.Context, in *RoomRequest) (*Room, error) {
	if _, err := s.userFromMD(ctx); err != nil {
		return nil, err
	}
	room, err := s.ctl.GetRoom(ctx, in.RoomID)
	if err != nil {
		return nil, mapErr(err)
	}
	return mapRoom(room), nil
}

func (s *Server) GetRoomByCode(ctx context.Context, in *GetRoomByCodeRequest) (*Room, error) {
	if _, err := s.userFromMD(ctx); err != nil {
		return nil, err
	}
	room, err := s.ctl.GetRoomByCode(ctx, in.Code)
	if err != nil {
		return nil, mapErr(err)
	}
	return mapRoom(room), nil
}

func (s *Server) EndRoom(ctx context.Context, in *RoomRequest) (*Room, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	room, err := s.ctl.EndRoom(ctx, in.RoomID, c.userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return mapRoom(room), nil
}

// -------- admission --------

func (s *Server) JoinRoom(ctx context.Context, in *JoinRoomRequest) (*Participant, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	name := in.DisplayName
	if name == "" {
		name = c.name
	}
	p, err := s.ctl.RequestJoin(ctx, in.RoomID, c.userID, name)
	if err != nil {
		return nil, mapErr(err)
	}
	return mapParticipant(p), nil
}

func (s *Server) LeaveRoom(ctx context.Context, in *RoomRequest) (*Empty, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ctl.Leave(ctx, in.RoomID, c.userID); err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
		return nil, mapErr(err)
	}
	return &Empty{}, nil
}

func (s *Server) GetStatus(ctx context.Context, in *RoomRequest) (*StatusResponse, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.ctl.GetStatus(ctx, in.RoomID, c.userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &StatusResponse{Status: string(st.Status), Reason: string(st.Reason), Role: string(st.Role)}, nil
}

func (s *Server) ListParticipants(ctx context.Context, in *RoomRequest) (*ParticipantsResponse, error) {
	if err := s.requireMember(ctx, in.RoomID); err != nil {
		return nil, err
	}
	list, err := s.ctl.ListParticipants(ctx, in.RoomID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ParticipantsResponse{Items: mapParticipants(list)}, nil
}

func (s *Server) ListPending(ctx context.Context, in *RoomRequest) (*ParticipantsResponse, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ctl.RequireHost(ctx, in.RoomID, c.userID); err != nil {
		return nil, mapErr(err)
	}
	active, expired, err := s.ctl.GetPendingParticipants(ctx, in.RoomID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ParticipantsResponse{Items: mapParticipants(active), ExpiredCount: expired}, nil
}

type admissionFunc func(ctx context.Context, roomID, userID, hostID string) (*domain.Participant, error)

func (s *Server) admission(ctx context.Context, in *ParticipantRequest, fn admissionFunc) (*Participant, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	p, err := fn(ctx, in.RoomID, in.UserID, c.userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return mapParticipant(p), nil
}

func (s *Server) Approve(ctx context.Context, in *ParticipantRequest) (*Participant, error) {
	return s.admission(ctx, in, s.ctl.Approve)
}

func (s *Server) Deny(ctx context.Context, in *ParticipantRequest) (*Participant, error) {
	return s.admission(ctx, in, s.ctl.Deny)
}

func (s *Server) Kick(ctx context.Context, in *ParticipantRequest) (*Participant, error) {
	return s.admission(ctx, in, s.ctl.Kick)
}

func (s *Server) Reapprove(ctx context.Context, in *ParticipantRequest) (*Participant, error) {
	return s.admission(ctx, in, s.ctl.Reapprove)
}

// -------- queue --------

func (s *Server) SubmitSong(ctx context.Context, in *SubmitSongRequest) (*QueueItem, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	if in.DurationMs < 0 {
		return nil, status.Error(codes.InvalidArgument, "duration_ms must be >= 0")
	}
	item, err := s.ctl.SubmitSong(ctx, in.RoomID, c.userID, in.SingerName, domain.Song{
		Title:    in.Title,
		Artist:   in.Artist,
		VideoID:  in.VideoID,
		Duration: time.Duration(in.DurationMs) * time.Millisecond,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return mapItem(item), nil
}

func (s *Server) GetQueue(ctx context.Context, in *RoomRequest) (*SnapshotResponse, error) {
	if err := s.requireMember(ctx, in.RoomID); err != nil {
		return nil, err
	}
	snap, err := s.ctl.Snapshot(ctx, in.RoomID)
	if err != nil {
		return nil, mapErr(err)
	}
	return mapSnapshot(snap), nil
}

func (s *Server) GetHistory(ctx context.Context, in *HistoryRequest) (*HistoryResponse, error) {
	if err := s.requireMember(ctx, in.RoomID); err != nil {
		return nil, err
	}
	items, next, err := s.ctl.History(ctx, in.RoomID, in.Limit, in.Cursor)
	if err != nil {
		return nil, mapErr(err)
	}
	return &HistoryResponse{Items: mapItems(items), NextCursor: next}, nil
}

// hostStep runs a playback step on behalf of the room host.
func (s *Server) hostStep(ctx context.Context, roomID string, fn func() (*repository.StepResult, error)) (*StepResponse, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ctl.RequireHost(ctx, roomID, c.userID); err != nil {
		return nil, mapErr(err)
	}
	res, err := fn()
	if err != nil {
		return nil, mapErr(err)
	}
	return mapStep(res), nil
}

// Advance completes the current entry; with entry_id only if that entry is still playing.
func (s *Server) Advance(ctx context.Context, in *EntryRequest) (*StepResponse, error) {
	return s.hostStep(ctx, in.RoomID, func() (*repository.StepResult, error) {
		if in.EntryID != "" {
			return s.ctl.AdvanceFrom(ctx, in.RoomID, in.EntryID)
		}
		return s.ctl.Advance(ctx, in.RoomID)
	})
}

func (s *Server) EnsurePlaying(ctx context.Context, in *RoomRequest) (*StepResponse, error) {
	return s.hostStep(ctx, in.RoomID, func() (*repository.StepResult, error) {
		return s.ctl.EnsurePlaying(ctx, in.RoomID)
	})
}

func (s *Server) PlaybackError(ctx context.Context, in *EntryRequest) (*StepResponse, error) {
	return s.hostStep(ctx, in.RoomID, func() (*repository.StepResult, error) {
		return s.ctl.HandlePlaybackError(ctx, in.RoomID, in.EntryID)
	})
}

func (s *Server) SkipSong(ctx context.Context, in *EntryRequest) (*StepResponse, error) {
	c, err := s.userFromMD(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ctl.CanSkip(ctx, in.RoomID, in.EntryID, c.userID); err != nil {
		return nil, mapErr(err)
	}
	res, err := s.ctl.SkipSong(ctx, in.RoomID, in.EntryID)
	if err != nil {
		return nil, mapErr(err)
	}
	return mapStep(res), nil
}
