package swipe

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/swipe-guard/internal/server"
)

// Client calls swipeguard.v1.SwipeService over the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(server.JSONCodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecordSwipe(ctx context.Context, in *RecordSwipeRequest, opts ...grpc.CallOption) (*RecordSwipeResponse, error) {
	return invoke[RecordSwipeResponse](ctx, c.cc, "RecordSwipe", in, opts)
}

func (c *Client) Unmatch(ctx context.Context, in *UnmatchRequest, opts ...grpc.CallOption) (*UnmatchResponse, error) {
	return invoke[UnmatchResponse](ctx, c.cc, "Unmatch", in, opts)
}

func (c *Client) GetBehaviorReport(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*BehaviorReportResponse, error) {
	return invoke[BehaviorReportResponse](ctx, c.cc, "GetBehaviorReport", in, opts)
}

func (c *Client) AnalyzeBot(ctx context.Context, in *UserRequest, opts ...grpc.CallOption) (*AnalyzeBotResponse, error) {
	return invoke[AnalyzeBotResponse](ctx, c.cc, "AnalyzeBot", in, opts)
}

func (c *Client) ListMatches(ctx context.Context, in *ListMatchesRequest, opts ...grpc.CallOption) (*ListMatchesResponse, error) {
	return invoke[ListMatchesResponse](ctx, c.cc, "ListMatches", in, opts)
}
