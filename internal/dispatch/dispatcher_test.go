// internal/dispatch/dispatcher_test.go
package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mferraretto/chatshopee22/internal/browser"
	"github.com/mferraretto/chatshopee22/internal/types"
)

type fakePage struct {
	visible      map[string]bool
	placeholder  bool
	labelClicked bool
	fills        []string
	clicks       []string
	enters       int
}

func (f *fakePage) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakePage) Location(ctx context.Context) (string, error)   { return "", nil }
func (f *fakePage) Text(ctx context.Context, sel string) (string, error) {
	return "", nil
}
func (f *fakePage) Texts(ctx context.Context, sel string) ([]string, error) {
	return nil, nil
}
func (f *fakePage) Count(ctx context.Context, sel string) (int, error) { return 0, nil }
func (f *fakePage) ClickNth(ctx context.Context, sel string, n int) error {
	return nil
}
func (f *fakePage) Screenshot(ctx context.Context) ([]byte, error)   { return nil, nil }
func (f *fakePage) Sleep(ctx context.Context, d time.Duration) error { return nil }

func (f *fakePage) Click(ctx context.Context, sel string) error {
	f.clicks = append(f.clicks, sel)
	return nil
}

func (f *fakePage) Fill(ctx context.Context, sel, value string) error {
	f.fills = append(f.fills, value)
	return nil
}

func (f *fakePage) PressEnter(ctx context.Context) error {
	f.enters++
	return nil
}

func (f *fakePage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if f.visible[sel] {
		return nil
	}
	return errors.New("not visible")
}

func (f *fakePage) Eval(ctx context.Context, js string, out any) error {
	b, ok := out.(*bool)
	if !ok {
		return nil
	}
	if strings.Contains(js, "placeholder") {
		*b = f.placeholder
		return nil
	}
	if strings.Contains(js, "textContent") {
		f.labelClicked = true
		*b = true
	}
	return nil
}

type memLedger struct {
	entries []types.AuditEntry
}

func (l *memLedger) Append(e types.AuditEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func testConv() *types.Conversation {
	return &types.Conversation{
		ID: "order-1",
		OrderInfo: types.OrderInfo{
			OrderID:   "250814AB12CD",
			Status:    "to ship",
			Title:     "Painel Festa",
			Variation: "Azul / Tam M",
			SKU:       "PF-AZ-M",
		},
		Timeline: types.Timeline{
			{Role: types.RoleBuyer, Text: "chegou rachado"},
		},
	}
}

func replyDecision() types.ReplyDecision {
	return types.ReplyDecision{
		ShouldReply: true,
		Text:        "Pode me enviar uma foto?",
		Action:      types.ActionReply,
		Reason:      "breakage",
	}
}

func newDispatcher(page *fakePage, ledger Ledger, opts Options) (*Dispatcher, *Throttle) {
	sel := browser.DefaultSelectors()
	if page.visible == nil {
		page.visible = map[string]bool{}
	}
	// First input candidate is visible unless the test says otherwise.
	first := strings.TrimSpace(strings.Split(sel.InputTextarea, ",")[0])
	if _, set := page.visible[first]; !set {
		page.visible[first] = true
	}
	th := NewThrottle(180 * time.Second)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(page, sel, th, ledger, opts, log), th
}

func TestHandleSendsReplyAndAudits(t *testing.T) {
	page := &fakePage{}
	ledger := &memLedger{}
	d, _ := newDispatcher(page, ledger, Options{})

	if err := d.Handle(context.Background(), testConv(), replyDecision()); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(page.fills) != 1 || page.fills[0] != "Pode me enviar uma foto?" {
		t.Errorf("fills = %v", page.fills)
	}
	if page.enters != 1 {
		t.Errorf("enters = %d, want 1", page.enters)
	}
	if len(ledger.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(ledger.entries))
	}
	e := ledger.entries[0]
	if e.Action != "replied" || e.OrderID != "250814AB12CD" || e.ProblemCategory != "breakage" {
		t.Errorf("entry = %+v", e)
	}
	if e.LastBuyerText != "chegou rachado" {
		t.Errorf("LastBuyerText = %q", e.LastBuyerText)
	}
}

func TestThrottleSuppressesSecondReply(t *testing.T) {
	page := &fakePage{}
	ledger := &memLedger{}
	d, th := newDispatcher(page, ledger, Options{})

	conv := testConv()
	if err := d.Handle(context.Background(), conv, replyDecision()); err != nil {
		t.Fatal(err)
	}

	// Same conversation scanned again 60 seconds later.
	base := time.Now()
	th.now = func() time.Time { return base.Add(60 * time.Second) }
	if err := d.Handle(context.Background(), conv, replyDecision()); err != nil {
		t.Fatal(err)
	}

	if len(page.fills) != 1 {
		t.Errorf("fills = %d, want the second send suppressed", len(page.fills))
	}

	// Past the window the reply goes out again.
	th.now = func() time.Time { return base.Add(181 * time.Second) }
	if err := d.Handle(context.Background(), conv, replyDecision()); err != nil {
		t.Fatal(err)
	}
	if len(page.fills) != 2 {
		t.Errorf("fills = %d, want 2 after the window elapsed", len(page.fills))
	}
}

func TestSkipStillWritesAuditRow(t *testing.T) {
	page := &fakePage{}
	ledger := &memLedger{}
	d, _ := newDispatcher(page, ledger, Options{})

	dec := types.ReplyDecision{Action: types.ActionSkip, Reason: "pix-pending"}
	if err := d.Handle(context.Background(), testConv(), dec); err != nil {
		t.Fatal(err)
	}

	if len(page.fills) != 0 {
		t.Errorf("skip must not type anything, fills = %v", page.fills)
	}
	if len(ledger.entries) != 1 || ledger.entries[0].Action != "skipped" {
		t.Errorf("entries = %+v", ledger.entries)
	}
	if ledger.entries[0].ProblemCategory != "pix-pending" {
		t.Errorf("ProblemCategory = %q", ledger.entries[0].ProblemCategory)
	}
}

func TestMissingInputIsRecoverable(t *testing.T) {
	page := &fakePage{visible: map[string]bool{}, placeholder: false}
	sel := browser.DefaultSelectors()
	for _, cand := range strings.Split(sel.InputTextarea, ",") {
		page.visible[strings.TrimSpace(cand)] = false
	}
	ledger := &memLedger{}
	d, th := newDispatcher(page, ledger, Options{})

	err := d.Handle(context.Background(), testConv(), replyDecision())
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
	if len(ledger.entries) != 1 || ledger.entries[0].Action != "send-failed" {
		t.Errorf("entries = %+v", ledger.entries)
	}
	// A failed send must not start the cool-down.
	if !th.Allow("order-1") {
		t.Error("throttle must stay open after a failed send")
	}
}

func TestPlaceholderFallbackFindsInput(t *testing.T) {
	page := &fakePage{visible: map[string]bool{}, placeholder: true}
	sel := browser.DefaultSelectors()
	for _, cand := range strings.Split(sel.InputTextarea, ",") {
		page.visible[strings.TrimSpace(cand)] = false
	}
	ledger := &memLedger{}
	d, _ := newDispatcher(page, ledger, Options{})

	if err := d.Handle(context.Background(), testConv(), replyDecision()); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(page.fills) != 1 {
		t.Errorf("fills = %v", page.fills)
	}
}

func TestLabelAppliedAfterReply(t *testing.T) {
	page := &fakePage{visible: map[string]bool{browser.DefaultSelectors().TagModal: true}}
	ledger := &memLedger{}
	d, _ := newDispatcher(page, ledger, Options{Label: "gpt"})

	if err := d.Handle(context.Background(), testConv(), replyDecision()); err != nil {
		t.Fatal(err)
	}
	if !page.labelClicked {
		t.Error("label item was not clicked")
	}
	found := false
	for _, c := range page.clicks {
		if c == browser.DefaultSelectors().ModalConfirm {
			found = true
		}
	}
	if !found {
		t.Errorf("confirm button not clicked, clicks = %v", page.clicks)
	}
}

func TestLabelActionTagsWithoutReplying(t *testing.T) {
	page := &fakePage{visible: map[string]bool{browser.DefaultSelectors().TagModal: true}}
	ledger := &memLedger{}
	d, th := newDispatcher(page, ledger, Options{Label: "revisar"})

	dec := types.ReplyDecision{Action: types.ActionLabel, Reason: "rule:flag-for-review"}
	if err := d.Handle(context.Background(), testConv(), dec); err != nil {
		t.Fatal(err)
	}

	if len(page.fills) != 0 || page.enters != 0 {
		t.Errorf("label action must not send anything, fills = %v", page.fills)
	}
	if !page.labelClicked {
		t.Error("label item was not clicked")
	}
	if len(ledger.entries) != 1 || ledger.entries[0].Action != "labeled" {
		t.Errorf("entries = %+v", ledger.entries)
	}
	// Labeling is not a reply, the cool-down stays open.
	if !th.Allow("order-1") {
		t.Error("throttle must stay open after labeling")
	}
}

func TestManualSendUsesInputDiscovery(t *testing.T) {
	page := &fakePage{visible: map[string]bool{}, placeholder: true}
	sel := browser.DefaultSelectors()
	for _, cand := range strings.Split(sel.InputTextarea, ",") {
		page.visible[strings.TrimSpace(cand)] = false
	}
	d, _ := newDispatcher(page, &memLedger{}, Options{})

	if err := d.Send(context.Background(), "Olá, vou verificar."); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(page.fills) != 1 || page.enters != 1 {
		t.Errorf("fills = %v, enters = %d", page.fills, page.enters)
	}
}

func TestThrottleWindow(t *testing.T) {
	th := NewThrottle(180 * time.Second)
	base := time.Now()
	th.now = func() time.Time { return base }

	if !th.Allow("k") {
		t.Fatal("fresh key must be allowed")
	}
	th.MarkReplied("k")

	th.now = func() time.Time { return base.Add(179 * time.Second) }
	if th.Allow("k") {
		t.Error("inside the window must be denied")
	}
	th.now = func() time.Time { return base.Add(180 * time.Second) }
	if !th.Allow("k") {
		t.Error("at the window boundary must be allowed")
	}
	if !th.Allow("other") {
		t.Error("unrelated keys are unaffected")
	}
}
