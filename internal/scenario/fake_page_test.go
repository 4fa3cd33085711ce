package scenario

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

// canvasColors gives every rendered map state a distinct flat colour
var canvasColors = map[string]color.RGBA{
	"initial": {R: 10, G: 20, B: 60, A: 255},
	"zoom":    {R: 200, G: 40, B: 40, A: 255},
	"search":  {R: 40, G: 200, B: 40, A: 255},
	"pan":     {R: 240, G: 240, B: 20, A: 255},
}

func canvasPNG(t testing.TB, state string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 18))
	c, ok := canvasColors[state]
	require.True(t, ok, "unknown state %s", state)
	for y := 0; y < 18; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakePage simulates the data map: interactions move it between canvas states
type fakePage struct {
	t      testing.TB
	mu     sync.Mutex
	calls  []string
	state  string
	down   bool
	status int

	openErr   error
	hiddenErr error
	// block makes the named action wait for the context to end
	block string
	// override replaces the rendered state for screenshots
	override string
	// flicker cycles screenshots through these states so no two in a row agree
	flicker []string
	shots   int
	// noResponse makes Open report no main-document response (status 0)
	noResponse bool
	closed     bool
}

func (f *fakePage) record(format string, args ...interface{}) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakePage) maybeBlock(ctx context.Context, action string) error {
	if f.block == action {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakePage) Open(ctx context.Context, params model.OpenParams) (*model.OpenResult, error) {
	f.record("open %s timeout=%s", params.URL, params.Timeout)
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.state = "initial"
	status := f.status
	if status == 0 && !f.noResponse {
		status = 200
	}
	return &model.OpenResult{URL: params.URL, Status: status}, nil
}

func (f *fakePage) WaitHidden(ctx context.Context, params model.WaitHiddenParams) error {
	f.record("wait-hidden %v timeout=%s", params.Selectors, params.Timeout)
	return f.hiddenErr
}

func (f *fakePage) Hover(ctx context.Context, selector string) error {
	f.record("hover %s", selector)
	return f.maybeBlock(ctx, "hover")
}

func (f *fakePage) MoveMouse(ctx context.Context, params model.MoveParams) error {
	f.record("move %.0f,%.0f steps=%d", params.To.X, params.To.Y, params.Steps)
	if f.down && params.To.X != 640 {
		f.state = "pan"
	}
	return nil
}

func (f *fakePage) MouseDown(ctx context.Context, button model.MouseButtonType) error {
	f.record("down %s", button)
	f.down = true
	return nil
}

func (f *fakePage) MouseUp(ctx context.Context, button model.MouseButtonType) error {
	f.record("up %s", button)
	f.down = false
	return nil
}

func (f *fakePage) Wheel(ctx context.Context, params model.WheelParams) error {
	f.record("wheel %.0f,%.0f", params.DeltaX, params.DeltaY)
	if params.DeltaY < 0 {
		f.state = "zoom"
	}
	return nil
}

func (f *fakePage) Fill(ctx context.Context, params model.FillParams) error {
	f.record("fill %s %s", params.Selector, params.Value)
	if params.Value == SearchTerm {
		f.state = "search"
	}
	return nil
}

func (f *fakePage) WaitNetworkIdle(ctx context.Context) error {
	f.record("network-idle")
	return nil
}

func (f *fakePage) Screenshot(ctx context.Context, params model.ScreenshotParams) ([]byte, error) {
	f.record("screenshot %s", params.Selector)
	state := f.state
	if f.override != "" {
		state = f.override
	}
	if len(f.flicker) > 0 {
		state = f.flicker[f.shots%len(f.flicker)]
		f.shots++
	}
	return canvasPNG(f.t, state), nil
}

func (f *fakePage) Snapshot(ctx context.Context) (*model.SnapshotResult, error) {
	return &model.SnapshotResult{URL: DefaultURL, Title: "CORD-19 Data Map", Markdown: "search: covid"}, nil
}

func (f *fakePage) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakePage) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeBrowser hands out pages built by configure and keeps them for inspection
type fakeBrowser struct {
	t         testing.TB
	mu        sync.Mutex
	pages     []*fakePage
	viewports []model.Viewport
	configure func(p *fakePage)
}

func (b *fakeBrowser) NewPage(ctx context.Context, viewport model.Viewport) (Page, error) {
	p := &fakePage{t: b.t}
	if b.configure != nil {
		b.configure(p)
	}
	b.mu.Lock()
	b.pages = append(b.pages, p)
	b.viewports = append(b.viewports, viewport)
	b.mu.Unlock()
	return p, nil
}
