package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// Setup failures. These are returned from Init and are not retried.
	ErrNoCompatibleDevice   = errors.New("no vulkan device supports the required extensions")
	ErrNoCompatibleQueue    = errors.New("no queue family matches the requested capabilities")
	ErrWindowNotPresentable = errors.New("window cannot provide a vulkan surface")

	// The swapchain no longer matches the surface. The caller is expected
	// to call Resize and try again on the next frame.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")

	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
	ErrStillInUse         = errors.New("object is still in use")
	ErrStaleHandle        = errors.New("stale handle")
	ErrInvalidState       = errors.New("invalid state transition")
)
