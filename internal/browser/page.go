// internal/browser/page.go
package browser

import (
	"context"
	"time"
)

// Page is the DOM surface the scanner, extractor, and dispatcher drive. All
// methods are bounded by the session's per-operation timeout; a missing
// element is reported as an error (or zero count), never retried here.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Text(ctx context.Context, sel string) (string, error)
	Texts(ctx context.Context, sel string) ([]string, error)
	Count(ctx context.Context, sel string) (int, error)
	Click(ctx context.Context, sel string) error
	ClickNth(ctx context.Context, sel string, n int) error
	Fill(ctx context.Context, sel, value string) error
	PressEnter(ctx context.Context) error
	Eval(ctx context.Context, js string, out any) error
	Screenshot(ctx context.Context) ([]byte, error)
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	Sleep(ctx context.Context, d time.Duration) error
}
