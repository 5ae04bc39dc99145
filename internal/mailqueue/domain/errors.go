package domain

import "errors"

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidQueueItem    = errors.New("invalid_queue_item")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidSubscription = errors.New("invalid_subscription")
	ErrQueueItemNotFound   = errors.New("queue_item_not_found")
	ErrNotCancellable      = errors.New("queue_item_not_cancellable")
	ErrQueueItemChanged    = errors.New("queue_item_status_changed")
	ErrEmptySelection      = errors.New("empty_selection")
)
