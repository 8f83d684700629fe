// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"gorm.io/gorm"
)

// Map converts domain/repo/infra errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}

	var cooldown *CooldownError
	var limited *RateLimitError

	switch {
	case errors.As(err, &cooldown):
		return withDetail(status.New(codes.Unavailable, err.Error()), timestamppb.New(cooldown.Until))

	case errors.As(err, &limited):
		st := status.New(codes.ResourceExhausted, err.Error())
		detail, derr := structpb.NewStruct(map[string]any{
			"remaining": limited.Remaining,
			"limit":     limited.Limit,
			"is_like":   limited.IsLike,
		})
		if derr != nil {
			return st.Err()
		}
		return withDetail(st, detail)

	case errors.Is(err, ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		// fallback → generic failure carrying the underlying message
		return status.Error(codes.Internal, Message(err))
	}
}

// withDetail attaches a machine-readable detail; the bare status is returned
// if the detail cannot be encoded.
func withDetail(st *status.Status, detail protoadapt.MessageV1) error {
	if ds, err := st.WithDetails(detail); err == nil {
		return ds.Err()
	}
	return st.Err()
}

// InvalidArgument creates a gRPC InvalidArgument error.
// Use this in service layer for bad input validation.
func InvalidArgument(msg string) error {
	return status.Error(codes.InvalidArgument, msg)
}
