// Package browser is the browser-automation boundary. Everything above it
// addresses elements by XPath selector and never touches a specific
// automation product.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a selector matches nothing.
var ErrNotFound = errors.New("element not found")

// Driver is the capability set the harvest needs from a browser page.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until sel is visible or timeout elapses.
	WaitFor(ctx context.Context, sel string, timeout time.Duration) error
	Visible(ctx context.Context, sel string) (bool, error)
	// Attribute returns the attribute value and whether it was present.
	Attribute(ctx context.Context, sel, name string) (string, bool, error)
	Text(ctx context.Context, sel string) (string, error)
	OuterHTML(ctx context.Context, sel string) (string, error)
	Count(ctx context.Context, sel string) (int, error)
	Click(ctx context.Context, sel string) error
	ScrollBy(ctx context.Context, sel string, dy float64) error
	ScrollTop(ctx context.Context, sel string) (float64, error)
	Close() error
}

// Launcher starts one browser identity per profile.
type Launcher interface {
	Launch(ctx context.Context, profile string) (Driver, error)
}
