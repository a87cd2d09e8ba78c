// internal/scan/scanner.go
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mferraretto/chatshopee22/internal/browser"
	"github.com/mferraretto/chatshopee22/internal/types"
)

// Reader pulls structured data out of the currently open conversation.
// Implemented by the extract package.
type Reader interface {
	ReadTimeline(ctx context.Context, depth int) (types.Timeline, error)
	ReadOrderInfo(ctx context.Context) (types.OrderInfo, error)
}

// Handler receives each conversation the scanner opens. A non-nil error
// aborts the cycle so the outer loop can tear down and re-establish.
type Handler func(ctx context.Context, conv *types.Conversation) error

// Config bounds a scan cycle.
type Config struct {
	MaxConversations int
	HistoryDepth     int
	ActionDelay      time.Duration
	// WaitReady blocks while the operator holds manual control. Nil means
	// never pause.
	WaitReady func(ctx context.Context) error
}

// Scanner walks the virtualized conversation list top to bottom, opening one
// row at a time and handing the extracted conversation to a handler.
type Scanner struct {
	page browser.Page
	sel  browser.Selectors
	rd   Reader
	cfg  Config
	log  *slog.Logger
}

func New(page browser.Page, sel browser.Selectors, rd Reader, cfg Config, log *slog.Logger) *Scanner {
	if cfg.MaxConversations <= 0 {
		cfg.MaxConversations = 50
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = 20
	}
	return &Scanner{page: page, sel: sel, rd: rd, cfg: cfg, log: log}
}

// openPolls bounds how long we wait for the message pane to reflect a row
// click before giving up on that row.
const openPolls = 6

// ApplyFilter switches the list between the needs-reply view and the full
// view. Best effort: a missing filter control is logged, not fatal.
func (s *Scanner) ApplyFilter(ctx context.Context, needsReply bool) {
	sel := s.sel.FilterAll
	name := "all"
	if needsReply {
		sel = s.sel.FilterNeedsReply
		name = "needs-reply"
	}
	if sel == "" {
		return
	}
	if err := s.page.Click(ctx, sel); err != nil {
		s.log.Debug("filter control not found", "filter", name, "error", err)
		return
	}
	s.log.Info("conversation filter applied", "filter", name)
	s.page.Sleep(ctx, s.cfg.ActionDelay)
}

// Cycle performs one full pass over the conversation list. Rows that fail to
// open are skipped; transport errors abort the pass.
func (s *Scanner) Cycle(ctx context.Context, handle Handler) error {
	seen := make(map[string]bool)
	visited := 0

	count, err := s.page.Count(ctx, s.sel.ChatListItem)
	if err != nil {
		return fmt.Errorf("count conversation rows: %w", err)
	}
	s.log.Info("scan cycle started", "visible_rows", count)

	for i := 0; visited < s.cfg.MaxConversations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.cfg.WaitReady != nil {
			if err := s.cfg.WaitReady(ctx); err != nil {
				return err
			}
		}

		if i >= count {
			grown, err := s.extendList(ctx, count)
			if err != nil {
				return err
			}
			if grown <= count {
				break
			}
			count = grown
		}

		before, _ := s.fingerprint(ctx)
		urlBefore, _ := s.page.Location(ctx)
		s.disarmRowLinks(ctx, i)

		if err := s.page.ClickNth(ctx, s.sel.ChatListItem, i); err != nil {
			s.log.Warn("row click failed, skipping", "index", i, "error", err)
			continue
		}
		s.page.Sleep(ctx, s.cfg.ActionDelay)

		fp, ok := s.awaitOpen(ctx, i, before, urlBefore)
		if !ok {
			s.log.Warn("conversation did not open, skipping", "index", i)
			continue
		}
		if fp != "" && seen[fp] {
			s.log.Debug("conversation already visited this cycle", "index", i, "fingerprint", fp)
			continue
		}
		if fp != "" {
			seen[fp] = true
		}

		conv, err := s.read(ctx, i)
		if err != nil {
			return err
		}
		visited++

		if err := handle(ctx, conv); err != nil {
			return fmt.Errorf("handle conversation %s: %w", conv.ID, err)
		}
	}

	s.log.Info("scan cycle finished", "visited", visited)
	return nil
}

// read extracts the open conversation and derives its stable key.
func (s *Scanner) read(ctx context.Context, index int) (*types.Conversation, error) {
	tl, err := s.rd.ReadTimeline(ctx, s.cfg.HistoryDepth)
	if err != nil {
		return nil, fmt.Errorf("read timeline at row %d: %w", index, err)
	}
	info, err := s.rd.ReadOrderInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("read order info at row %d: %w", index, err)
	}

	key := types.DeriveConversationKey(info.OrderID, tl.BuyerOnly(), fmt.Sprintf("row-%d", index))
	return &types.Conversation{
		ID:        key,
		ScanIndex: index,
		OrderInfo: info,
		Timeline:  tl,
	}, nil
}

// awaitOpen polls for the message pane to show a different conversation than
// before the click, while the page URL stays on the console. A click that
// navigates away (a product link swallowed the tap) is recovered by going
// back and the row is skipped. The first row is allowed to match the
// pre-click state since nothing may have been open yet.
func (s *Scanner) awaitOpen(ctx context.Context, index int, before, urlBefore string) (string, bool) {
	for poll := 0; poll < openPolls; poll++ {
		if s.leftConsole(ctx, urlBefore) {
			s.recoverNavigation(ctx, index, urlBefore)
			return "", false
		}
		fp, err := s.fingerprint(ctx)
		if err == nil {
			if fp != "" && fp != before {
				return fp, true
			}
			if index == 0 && fp != "" {
				return fp, true
			}
		}
		if err := s.page.Sleep(ctx, 500*time.Millisecond); err != nil {
			return "", false
		}
	}
	if s.leftConsole(ctx, urlBefore) {
		s.recoverNavigation(ctx, index, urlBefore)
		return "", false
	}
	// A conversation with an empty header area still counts as open when
	// messages are visible.
	if n, err := s.page.Count(ctx, s.sel.MessageItems); err == nil && n > 0 {
		return "", true
	}
	return "", false
}

// leftConsole reports whether the page URL moved away from where it was
// before the row click.
func (s *Scanner) leftConsole(ctx context.Context, urlBefore string) bool {
	if urlBefore == "" {
		return false
	}
	loc, err := s.page.Location(ctx)
	return err == nil && loc != "" && loc != urlBefore
}

func (s *Scanner) recoverNavigation(ctx context.Context, index int, urlBefore string) {
	loc, _ := s.page.Location(ctx)
	s.log.Warn("row click navigated off the console, going back",
		"index", index, "url", loc)
	if err := s.page.Navigate(ctx, urlBefore); err != nil {
		s.log.Warn("navigation recovery failed", "error", err)
		return
	}
	s.page.Sleep(ctx, 500*time.Millisecond)
}

// disarmRowLinks strips href targets inside a row before it is clicked.
// Rows sometimes embed product anchors that would carry the click off the
// chat console.
func (s *Scanner) disarmRowLinks(ctx context.Context, index int) {
	js := fmt.Sprintf(`(() => {
		const rows = document.querySelectorAll(%s);
		const row = rows[%d];
		if (!row) return 0;
		let n = 0;
		row.querySelectorAll("a[href]").forEach(a => {
			a.removeAttribute("href");
			a.removeAttribute("target");
			n++;
		});
		return n;
	})()`, jsString(s.sel.ChatListItem), index)

	var n int
	if err := s.page.Eval(ctx, js, &n); err != nil {
		s.log.Debug("link disarm failed", "index", index, "error", err)
	}
}

// fingerprint identifies the open conversation from the detail pane, trying
// the order header, the product link and the account name in that order.
func (s *Scanner) fingerprint(ctx context.Context) (string, error) {
	var lastErr error
	for _, sel := range []string{s.sel.OrderHeaderID, s.sel.ProductURL, s.sel.AccountName} {
		if sel == "" {
			continue
		}
		t, err := s.page.Text(ctx, sel)
		if err != nil {
			lastErr = err
			continue
		}
		if t = strings.TrimSpace(t); t != "" {
			return t, nil
		}
	}
	return "", lastErr
}

// extendList scrolls the virtualized list container to its bottom and
// recounts, so rows beyond the rendered window become clickable.
func (s *Scanner) extendList(ctx context.Context, have int) (int, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.scrollTop = el.scrollHeight;
		return true;
	})()`, jsString(s.sel.ChatListRoot))

	var ok bool
	if err := s.page.Eval(ctx, js, &ok); err != nil {
		return have, fmt.Errorf("scroll conversation list: %w", err)
	}
	if !ok {
		return have, nil
	}
	if err := s.page.Sleep(ctx, 600*time.Millisecond); err != nil {
		return have, err
	}
	n, err := s.page.Count(ctx, s.sel.ChatListItem)
	if err != nil {
		return have, err
	}
	if n > have {
		s.log.Debug("conversation list extended", "rows", n)
	}
	return n, nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
