package swipe

import (
	"context"
	"strconv"

	svcErr "github.com/oggyb/swipe-guard/internal/errors"
	"github.com/oggyb/swipe-guard/internal/logger"
)

// Service implements the SwipeService gRPC API on top of a Processor.
type Service struct {
	proc *Processor
}

// NewService exposes proc over gRPC.
func NewService(proc *Processor) *Service {
	return &Service{proc: proc}
}

var _ SwipeServiceServer = (*Service)(nil)

func parseUserID(field, v string) (uint64, error) {
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, svcErr.InvalidArgument(field + " must be a valid uint64")
	}
	return id, nil
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

// RecordSwipe records a like or pass and reports whether it completed a match.
//
// Example:
//
//	svc.RecordSwipe(ctx, &RecordSwipeRequest{UserID: "1", TargetUserID: "2", IsLike: true})
func (s *Service) RecordSwipe(ctx context.Context, req *RecordSwipeRequest) (*RecordSwipeResponse, error) {
	log := logger.FromContext(ctx, s.proc.log)
	log.Debug("RecordSwipe called", "user", req.UserID, "target", req.TargetUserID, "like", req.IsLike)

	userID, err := parseUserID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	targetID, err := parseUserID("target_user_id", req.TargetUserID)
	if err != nil {
		return nil, err
	}

	res, err := s.proc.RecordSwipe(ctx, SwipeRequest{
		UserID:         userID,
		TargetUserID:   targetID,
		IsLike:         req.IsLike,
		IdempotencyKey: req.IdempotencyKey,
		DeviceInfo:     req.DeviceInfo,
		Location:       req.Location,
	})
	if err != nil {
		log.Debug("RecordSwipe rejected", "err", err)
		return nil, svcErr.Map(err)
	}

	resp := &RecordSwipeResponse{
		Success:             res.Success,
		Message:             res.Message,
		IsMutualMatch:       res.IsMutualMatch,
		SwipeID:             formatID(res.SwipeID),
		Replayed:            res.Replayed,
		NotificationPending: res.NotificationPending,
	}
	if res.MatchID != 0 {
		resp.MatchID = formatID(res.MatchID)
	}
	return resp, nil
}

// Unmatch ends an active match.
func (s *Service) Unmatch(ctx context.Context, req *UnmatchRequest) (*UnmatchResponse, error) {
	userID, err := parseUserID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	targetID, err := parseUserID("target_user_id", req.TargetUserID)
	if err != nil {
		return nil, err
	}

	res, err := s.proc.Unmatch(ctx, userID, targetID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &UnmatchResponse{Success: res.Success, Message: res.Message}, nil
}

// GetBehaviorReport returns the trust report of a user.
func (s *Service) GetBehaviorReport(ctx context.Context, req *UserRequest) (*BehaviorReportResponse, error) {
	userID, err := parseUserID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	r, err := s.proc.GetBehaviorReport(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &BehaviorReportResponse{Report: r}, nil
}

// AnalyzeBot runs the bot heuristics for a user.
func (s *Service) AnalyzeBot(ctx context.Context, req *UserRequest) (*AnalyzeBotResponse, error) {
	userID, err := parseUserID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}
	r, err := s.proc.AnalyzeBot(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &AnalyzeBotResponse{Result: r}, nil
}

// ListMatches pages through a user's active matches, newest first.
func (s *Service) ListMatches(ctx context.Context, req *ListMatchesRequest) (*ListMatchesResponse, error) {
	userID, err := parseUserID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}

	matches, next, err := s.proc.ListMatches(ctx, userID, req.PaginationToken, int(req.PageSize))
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &ListMatchesResponse{Matches: make([]MatchItem, 0, len(matches)), NextPaginationToken: next}
	for _, m := range matches {
		other := m.User1ID
		if other == userID {
			other = m.User2ID
		}
		resp.Matches = append(resp.Matches, MatchItem{
			MatchID:       formatID(m.ID),
			OtherUserID:   formatID(other),
			UnixTimestamp: uint64(m.CreatedAt.UnixMilli()),
		})
	}
	return resp, nil
}
