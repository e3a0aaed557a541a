package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/coolftc/prompt/internal/ktime"
	"github.com/coolftc/prompt/internal/outbox"
	"github.com/coolftc/prompt/internal/push"
	"github.com/coolftc/prompt/internal/recur"
	"github.com/coolftc/prompt/internal/remote"
	intsync "github.com/coolftc/prompt/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var invalid = []error{
	ktime.ErrParse,
	recur.ErrProblemDayWeek,
	recur.ErrProblemOccur,
	recur.ErrProblemEndRepeat,
	recur.ErrProblemEndDate,
	recur.ErrUnknownUnit,
	outbox.ErrEmptyMessage,
	push.ErrUnknownType,
	push.ErrBadPayload,
}

// toStatus maps a domain error onto a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	return grpcstatus.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	for _, target := range invalid {
		if errors.Is(err, target) {
			return codes.InvalidArgument
		}
	}

	var se *remote.StatusError
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, outbox.ErrNotFound), errors.Is(err, outbox.ErrUnknownTarget):
		return codes.NotFound
	case errors.Is(err, outbox.ErrNotRegistered), errors.Is(err, intsync.ErrNotRegistered):
		return codes.FailedPrecondition
	case errors.Is(err, remote.ErrTransport), errors.Is(err, remote.ErrNoHost), errors.Is(err, intsync.ErrAnomaly):
		return codes.Unavailable
	case errors.As(err, &se):
		return httpCode(se.Code)
	}
	return codes.Internal
}

func httpCode(status int) codes.Code {
	switch status {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized, http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	}
	if status >= 500 {
		return codes.Unavailable
	}
	return codes.Aborted
}
