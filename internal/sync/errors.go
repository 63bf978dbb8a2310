package sync

import "errors"

var (
	// ErrSourceUnavailable means the calendar could not be fetched or parsed.
	// No tasks are touched.
	ErrSourceUnavailable = errors.New("calendar source unavailable")

	// ErrListResolutionFailed means the target list could not be found or created.
	ErrListResolutionFailed = errors.New("task list resolution failed")

	// ErrIndexLoadFailed means the tasks already in the target list could not be read.
	ErrIndexLoadFailed = errors.New("existing task index could not be loaded")

	// ErrTaskInsertFailed marks a rejected insertion. Ordinary rejections are
	// counted and logged; it is returned only when an authorization error or a
	// cancelled context aborts the batch.
	ErrTaskInsertFailed = errors.New("task insert failed")
)
