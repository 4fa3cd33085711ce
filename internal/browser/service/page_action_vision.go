package service

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	model "github.com/acwooding/dmp-test-ci/pkg/browser"
)

func mapMouseButton(button model.MouseButtonType) *playwright.MouseButton {
	switch button {
	case model.MouseButtonRight:
		return playwright.MouseButtonRight
	case model.MouseButtonMiddle:
		return playwright.MouseButtonMiddle
	default:
		return playwright.MouseButtonLeft
	}
}

// Hover moves the pointer over the centre of the element matching selector
func (p *Session) Hover(ctx context.Context, selector string) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	timeout, err := timeoutMs(ctx, 0)
	if err != nil {
		return err
	}
	if err := p.page.Locator(selector).Hover(playwright.LocatorHoverOptions{Timeout: timeout}); err != nil {
		return fmt.Errorf("hover %s failed: %w", selector, err)
	}
	return nil
}

// MoveMouse moves the pointer to params.To, dispatching params.Steps intermediate moves
func (p *Session) MoveMouse(ctx context.Context, params model.MoveParams) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	steps := params.Steps
	if steps < 1 {
		steps = 1
	}
	if err := p.page.Mouse().Move(params.To.X, params.To.Y, playwright.MouseMoveOptions{
		Steps: playwright.Int(steps),
	}); err != nil {
		return fmt.Errorf("mouse move to (%.0f, %.0f) failed: %w", params.To.X, params.To.Y, err)
	}
	return nil
}

// MouseDown presses a mouse button at the current pointer position
func (p *Session) MouseDown(ctx context.Context, button model.MouseButtonType) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	if err := p.page.Mouse().Down(playwright.MouseDownOptions{Button: mapMouseButton(button)}); err != nil {
		return fmt.Errorf("mouse down failed: %w", err)
	}
	return nil
}

// MouseUp releases a mouse button at the current pointer position
func (p *Session) MouseUp(ctx context.Context, button model.MouseButtonType) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	if err := p.page.Mouse().Up(playwright.MouseUpOptions{Button: mapMouseButton(button)}); err != nil {
		return fmt.Errorf("mouse up failed: %w", err)
	}
	return nil
}

// Wheel dispatches a wheel event at the current pointer position.
// Negative DeltaY scrolls up, which zooms in on the map.
func (p *Session) Wheel(ctx context.Context, params model.WheelParams) error {
	if err := p.checkOpen(ctx); err != nil {
		return err
	}
	if err := p.page.Mouse().Wheel(params.DeltaX, params.DeltaY); err != nil {
		return fmt.Errorf("mouse wheel (%.0f, %.0f) failed: %w", params.DeltaX, params.DeltaY, err)
	}
	return nil
}
