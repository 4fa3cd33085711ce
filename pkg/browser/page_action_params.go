// Package model holds the page action types shared by the driver and the scenario runner.
package model

import "time"

// MouseButtonType is the button used for pointer down/up
type MouseButtonType string

const (
	MouseButtonLeft   MouseButtonType = "left"
	MouseButtonRight  MouseButtonType = "right"
	MouseButtonMiddle MouseButtonType = "middle"
)

// Viewport is the page size in CSS pixels
type Viewport struct {
	Width  int `json:"width" yaml:"width" validate:"gt=0"`
	Height int `json:"height" yaml:"height" validate:"gt=0"`
}

// Coordinate is a point on the page
type Coordinate struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// OpenParams configures navigation
type OpenParams struct {
	URL     string
	Timeout time.Duration
}

// WaitHiddenParams configures waiting for elements to reach the hidden state
type WaitHiddenParams struct {
	Selectors []string
	Timeout   time.Duration
}

// MoveParams moves the pointer to a point, in Steps intermediate events
type MoveParams struct {
	To    Coordinate
	Steps int
}

// WheelParams dispatches a wheel event at the current pointer position
type WheelParams struct {
	DeltaX float64
	DeltaY float64
}

// FillParams sets the value of an input
type FillParams struct {
	Selector string
	Value    string
}

// ScreenshotParams captures a single element
type ScreenshotParams struct {
	Selector string
	Timeout  time.Duration
}
