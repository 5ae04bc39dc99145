package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error)
	RemainingQuota(ctx context.Context, userID snowflake.ID, maxLetters int) (int, error)
	LockTomorrow(ctx context.Context) (LockResult, error)
	Cancel(ctx context.Context, req CancelRequest) error
	MarkSent(ctx context.Context, ids []snowflake.ID) (int64, error)
	List(ctx context.Context, req ListRequest) ([]MailJob, error)
}
