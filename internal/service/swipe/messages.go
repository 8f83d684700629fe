package swipe

import (
	"github.com/oggyb/swipe-guard/internal/botdetect"
	"github.com/oggyb/swipe-guard/internal/trust"
)

// Wire messages of swipeguard.v1.SwipeService. User and match ids travel as
// decimal strings.

type RecordSwipeRequest struct {
	UserID         string `json:"user_id"`
	TargetUserID   string `json:"target_user_id"`
	IsLike         bool   `json:"is_like"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	DeviceInfo     string `json:"device_info,omitempty"`
	Location       string `json:"location,omitempty"`
}

type RecordSwipeResponse struct {
	Success             bool   `json:"success"`
	Message             string `json:"message"`
	IsMutualMatch       bool   `json:"is_mutual_match"`
	MatchID             string `json:"match_id,omitempty"`
	SwipeID             string `json:"swipe_id"`
	Replayed            bool   `json:"replayed,omitempty"`
	NotificationPending bool   `json:"notification_pending,omitempty"`
}

type UnmatchRequest struct {
	UserID       string `json:"user_id"`
	TargetUserID string `json:"target_user_id"`
}

type UnmatchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type UserRequest struct {
	UserID string `json:"user_id"`
}

type BehaviorReportResponse struct {
	Report trust.Report `json:"report"`
}

type AnalyzeBotResponse struct {
	Result botdetect.Result `json:"result"`
}

type ListMatchesRequest struct {
	UserID          string  `json:"user_id"`
	PageSize        int32   `json:"page_size,omitempty"`
	PaginationToken *string `json:"pagination_token,omitempty"`
}

type ListMatchesResponse struct {
	Matches             []MatchItem `json:"matches"`
	NextPaginationToken *string     `json:"next_pagination_token,omitempty"`
}

type MatchItem struct {
	MatchID       string `json:"match_id"`
	OtherUserID   string `json:"other_user_id"`
	UnixTimestamp uint64 `json:"unix_timestamp"`
}
