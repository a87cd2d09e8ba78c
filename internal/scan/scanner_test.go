// internal/scan/scanner_test.go
package scan

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mferraretto/chatshopee22/internal/browser"
	"github.com/mferraretto/chatshopee22/internal/types"
)

// fakePage simulates the list pane: each row carries the fingerprint the
// detail pane shows once that row is open. Empty means the click is ignored.
type fakePage struct {
	sel       browser.Selectors
	rows      []string
	pending   []string // appended to rows after a list scroll
	current   string
	clicks    []int
	msgs      int            // visible message items in the pane
	location  string         // current page URL
	hijack    map[int]string // rows whose click carries the page to another URL
	navigates []string
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.navigates = append(f.navigates, url)
	f.location = url
	return nil
}
func (f *fakePage) Location(ctx context.Context) (string, error)   { return f.location, nil }
func (f *fakePage) Click(ctx context.Context, sel string) error    { return nil }
func (f *fakePage) Fill(ctx context.Context, sel, v string) error  { return nil }
func (f *fakePage) PressEnter(ctx context.Context) error           { return nil }
func (f *fakePage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (f *fakePage) Texts(ctx context.Context, sel string) ([]string, error) {
	return nil, nil
}
func (f *fakePage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return nil
}
func (f *fakePage) Sleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func (f *fakePage) Count(ctx context.Context, sel string) (int, error) {
	switch sel {
	case f.sel.ChatListItem:
		return len(f.rows), nil
	case f.sel.MessageItems:
		return f.msgs, nil
	}
	return 0, nil
}

func (f *fakePage) ClickNth(ctx context.Context, sel string, n int) error {
	f.clicks = append(f.clicks, n)
	if n < len(f.rows) && f.rows[n] != "" {
		f.current = f.rows[n]
	}
	if url, ok := f.hijack[n]; ok {
		f.location = url
	}
	return nil
}

func (f *fakePage) Text(ctx context.Context, sel string) (string, error) {
	if sel == f.sel.OrderHeaderID {
		return f.current, nil
	}
	return "", nil
}

func (f *fakePage) Eval(ctx context.Context, js string, out any) error {
	if strings.Contains(js, "scrollTop") {
		f.rows = append(f.rows, f.pending...)
		f.pending = nil
		if b, ok := out.(*bool); ok {
			*b = true
		}
	}
	return nil
}

// fakeReader hands back a timeline whose single buyer message is the open
// conversation's fingerprint, so derived keys track the fake page state.
type fakeReader struct {
	page *fakePage
}

func (r *fakeReader) ReadTimeline(ctx context.Context, depth int) (types.Timeline, error) {
	return types.Timeline{{Role: types.RoleBuyer, Text: r.page.current}}, nil
}

func (r *fakeReader) ReadOrderInfo(ctx context.Context) (types.OrderInfo, error) {
	return types.OrderInfo{BuyerName: r.page.current}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestScanner(page *fakePage, cfg Config) *Scanner {
	page.sel = browser.DefaultSelectors()
	return New(page, page.sel, &fakeReader{page: page}, cfg, discardLogger())
}

func TestCycleVisitsEachRow(t *testing.T) {
	page := &fakePage{rows: []string{"A", "B", "C"}}
	s := newTestScanner(page, Config{MaxConversations: 10, HistoryDepth: 5})

	var got []string
	err := s.Cycle(context.Background(), func(ctx context.Context, c *types.Conversation) error {
		got = append(got, c.OrderInfo.BuyerName)
		return nil
	})
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("visited %v, want [A B C]", got)
	}
}

func TestCycleSkipsRowThatDoesNotOpen(t *testing.T) {
	// Row 1's click is swallowed by the page and no messages render, so the
	// scanner must move on without handling it.
	page := &fakePage{rows: []string{"A", "", "C"}}
	s := newTestScanner(page, Config{MaxConversations: 10})

	var got []string
	err := s.Cycle(context.Background(), func(ctx context.Context, c *types.Conversation) error {
		got = append(got, c.OrderInfo.BuyerName)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("visited %v, want [A C]", got)
	}
}

func TestCycleSkipsAlreadyVisitedConversation(t *testing.T) {
	page := &fakePage{rows: []string{"A", "B", "A"}}
	s := newTestScanner(page, Config{MaxConversations: 10})

	var got []string
	err := s.Cycle(context.Background(), func(ctx context.Context, c *types.Conversation) error {
		got = append(got, c.OrderInfo.BuyerName)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("visited %v, want [A B]", got)
	}
}

func TestCycleRecoversFromRowClickThatNavigatesAway(t *testing.T) {
	// Row 1 carries a product anchor, so its click moves the page URL to the
	// product page even though a fingerprint renders. The scanner must not
	// treat that as an opened conversation: it goes back and skips the row.
	const console = "https://web.duoke.com/?lang=en#/dk/main/chat"
	page := &fakePage{
		rows:     []string{"A", "B", "C"},
		location: console,
		hijack:   map[int]string{1: "https://shopee.example/product/123"},
	}
	s := newTestScanner(page, Config{MaxConversations: 10})

	var got []string
	err := s.Cycle(context.Background(), func(ctx context.Context, c *types.Conversation) error {
		got = append(got, c.OrderInfo.BuyerName)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Errorf("visited %v, want [A C]", got)
	}
	if len(page.navigates) != 1 || page.navigates[0] != console {
		t.Errorf("recovery navigations = %v, want one back to the console", page.navigates)
	}
	if page.location != console {
		t.Errorf("page ended at %q, want the console", page.location)
	}
}

func TestCycleExtendsVirtualizedList(t *testing.T) {
	page := &fakePage{rows: []string{"A", "B"}, pending: []string{"C"}}
	s := newTestScanner(page, Config{MaxConversations: 10})

	var got []string
	err := s.Cycle(context.Background(), func(ctx context.Context, c *types.Conversation) error {
		got = append(got, c.OrderInfo.BuyerName)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2] != "C" {
		t.Errorf("visited %v, want the scrolled-in row last", got)
	}
}

func TestCycleHonorsMaxConversations(t *testing.T) {
	page := &fakePage{rows: []string{"A", "B", "C", "D"}}
	s := newTestScanner(page, Config{MaxConversations: 2})

	n := 0
	err := s.Cycle(context.Background(), func(ctx context.Context, c *types.Conversation) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("visited %d conversations, want 2", n)
	}
}

func TestCycleAbortsOnHandlerError(t *testing.T) {
	page := &fakePage{rows: []string{"A", "B"}}
	s := newTestScanner(page, Config{MaxConversations: 10})

	boom := errors.New("detail pane gone")
	err := s.Cycle(context.Background(), func(ctx context.Context, c *types.Conversation) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped handler error", err)
	}
	if len(page.clicks) != 1 {
		t.Errorf("clicks = %v, want a single row opened", page.clicks)
	}
}

func TestCycleWaitReadyGate(t *testing.T) {
	page := &fakePage{rows: []string{"A"}}
	stop := errors.New("session torn down")
	s := newTestScanner(page, Config{
		MaxConversations: 10,
		WaitReady: func(ctx context.Context) error {
			return stop
		},
	})

	err := s.Cycle(context.Background(), func(ctx context.Context, c *types.Conversation) error {
		t.Fatal("handler must not run while gated")
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want gate error", err)
	}
}
