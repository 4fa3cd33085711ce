package scenario

import (
	"context"

	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

// Page is the browser surface scenarios drive
type Page interface {
	Open(ctx context.Context, params model.OpenParams) (*model.OpenResult, error)
	WaitHidden(ctx context.Context, params model.WaitHiddenParams) error
	Hover(ctx context.Context, selector string) error
	MoveMouse(ctx context.Context, params model.MoveParams) error
	MouseDown(ctx context.Context, button model.MouseButtonType) error
	MouseUp(ctx context.Context, button model.MouseButtonType) error
	Wheel(ctx context.Context, params model.WheelParams) error
	Fill(ctx context.Context, params model.FillParams) error
	WaitNetworkIdle(ctx context.Context) error
	Screenshot(ctx context.Context, params model.ScreenshotParams) ([]byte, error)
	Snapshot(ctx context.Context) (*model.SnapshotResult, error)
	Close() error
}

// PageFactory opens a fresh, isolated page with the given viewport
type PageFactory func(ctx context.Context, viewport model.Viewport) (Page, error)
