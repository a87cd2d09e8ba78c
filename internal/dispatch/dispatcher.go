// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mferraretto/chatshopee22/internal/browser"
	"github.com/mferraretto/chatshopee22/internal/types"
)

// ErrNoInput marks a conversation whose message box could not be located.
// It is recoverable: the caller logs it and moves to the next conversation.
var ErrNoInput = errors.New("message input not found")

// Ledger persists one audit row per handled conversation.
type Ledger interface {
	Append(entry types.AuditEntry) error
}

// placeholderPattern finds the message box by its placeholder when every
// configured selector misses. The JS adds the i flag.
const placeholderPattern = `Type a message here|press Enter to send|Enter to send`

// inputMarker tags the element the placeholder search found so the regular
// fill path can address it.
const inputMarker = "data-autoreply-input"

// Options tunes dispatch side effects.
type Options struct {
	// Label is the tag applied to replied conversations. Empty disables
	// labeling.
	Label       string
	ActionDelay time.Duration
}

// Dispatcher executes a reply decision against the open conversation:
// throttling, typing and submitting the reply, labeling, and the audit row.
type Dispatcher struct {
	page     browser.Page
	sel      browser.Selectors
	throttle *Throttle
	ledger   Ledger
	opts     Options
	log      *slog.Logger
}

func New(page browser.Page, sel browser.Selectors, throttle *Throttle, ledger Ledger, opts Options, log *slog.Logger) *Dispatcher {
	return &Dispatcher{page: page, sel: sel, throttle: throttle, ledger: ledger, opts: opts, log: log}
}

// Handle applies the decision to the conversation. Skipped conversations
// still get an audit row so downstream analytics sees full coverage.
func (d *Dispatcher) Handle(ctx context.Context, conv *types.Conversation, dec types.ReplyDecision) error {
	if dec.Action == types.ActionLabel {
		if d.opts.Label != "" {
			if err := d.applyLabel(ctx); err != nil {
				d.log.Debug("labeling failed", "conversation", conv.ID, "error", err)
			}
		}
		d.audit(conv, dec, "labeled")
		return nil
	}
	if !dec.ShouldReply {
		d.audit(conv, dec, "skipped")
		return nil
	}

	if !d.throttle.Allow(conv.ID) {
		d.log.Debug("reply suppressed by cool-down", "conversation", conv.ID)
		return nil
	}

	if err := d.sendReply(ctx, dec.Text); err != nil {
		if errors.Is(err, ErrNoInput) {
			d.log.Warn("reply not sent", "conversation", conv.ID, "error", err)
			d.audit(conv, dec, "send-failed")
			return err
		}
		return fmt.Errorf("send reply to %s: %w", conv.ID, err)
	}

	d.throttle.MarkReplied(conv.ID)
	d.log.Info("reply sent", "conversation", conv.ID, "intent", dec.Reason)

	if d.opts.Label != "" {
		if err := d.applyLabel(ctx); err != nil {
			d.log.Debug("labeling failed", "conversation", conv.ID, "error", err)
		}
	}

	d.audit(conv, dec, "replied")

	if d.opts.ActionDelay > 0 {
		return d.page.Sleep(ctx, d.opts.ActionDelay)
	}
	return nil
}

// Send types and submits text into the open conversation using the same
// input discovery as automated replies.
func (d *Dispatcher) Send(ctx context.Context, text string) error {
	return d.sendReply(ctx, text)
}

// sendReply locates the message box, types the text and submits it. The
// selector candidates are tried in order, then the placeholder search.
func (d *Dispatcher) sendReply(ctx context.Context, text string) error {
	input := ""
	for _, cand := range strings.Split(d.sel.InputTextarea, ",") {
		cand = strings.TrimSpace(cand)
		if cand == "" {
			continue
		}
		if err := d.page.WaitVisible(ctx, cand, 3*time.Second); err != nil {
			continue
		}
		input = cand
		break
	}

	if input == "" {
		found, err := d.markInputByPlaceholder(ctx)
		if err != nil {
			return err
		}
		if !found {
			return ErrNoInput
		}
		input = fmt.Sprintf("[%s='1']", inputMarker)
	}

	if err := d.page.Fill(ctx, input, text); err != nil {
		return fmt.Errorf("fill message box: %w", err)
	}
	if err := d.page.PressEnter(ctx); err != nil {
		return fmt.Errorf("submit message: %w", err)
	}

	// Some layouts need the explicit send button on top of Enter.
	if d.sel.SendButton != "" {
		if n, err := d.page.Count(ctx, d.sel.SendButton); err == nil && n > 0 {
			if err := d.page.Click(ctx, d.sel.SendButton); err != nil {
				d.log.Debug("send button click failed after Enter", "error", err)
			}
		}
	}
	return nil
}

func (d *Dispatcher) markInputByPlaceholder(ctx context.Context) (bool, error) {
	js := fmt.Sprintf(`(() => {
		const re = new RegExp(%s, 'i');
		const els = document.querySelectorAll('textarea, input[type="text"], [contenteditable="true"]');
		for (const el of els) {
			const ph = el.getAttribute('placeholder') || el.getAttribute('data-placeholder') || '';
			if (re.test(ph)) {
				el.setAttribute(%s, '1');
				return true;
			}
		}
		return false;
	})()`, jsString(placeholderPattern), jsString(inputMarker))

	var found bool
	if err := d.page.Eval(ctx, js, &found); err != nil {
		return false, fmt.Errorf("placeholder search: %w", err)
	}
	return found, nil
}

// applyLabel opens the tag modal, activates the configured label and
// confirms. Best effort: any missing element fails the whole operation.
func (d *Dispatcher) applyLabel(ctx context.Context) error {
	if err := d.page.Click(ctx, d.sel.TagButton); err != nil {
		return fmt.Errorf("open tag modal: %w", err)
	}
	if err := d.page.WaitVisible(ctx, d.sel.TagModal, 5*time.Second); err != nil {
		return fmt.Errorf("tag modal did not appear: %w", err)
	}

	js := fmt.Sprintf(`(() => {
		const modal = document.querySelector(%s);
		if (!modal) return false;
		const items = modal.querySelectorAll(%s);
		for (const it of items) {
			if ((it.textContent || '').trim() === %s) {
				it.click();
				return true;
			}
		}
		return false;
	})()`, jsString(d.sel.TagModal), jsString(d.sel.TagItem), jsString(d.opts.Label))

	var clicked bool
	if err := d.page.Eval(ctx, js, &clicked); err != nil {
		return fmt.Errorf("select label: %w", err)
	}
	if !clicked {
		return fmt.Errorf("label %q not present in tag modal", d.opts.Label)
	}

	if err := d.page.Sleep(ctx, 300*time.Millisecond); err != nil {
		return err
	}
	if err := d.page.Click(ctx, d.sel.ModalConfirm); err != nil {
		return fmt.Errorf("confirm label: %w", err)
	}
	return nil
}

func (d *Dispatcher) audit(conv *types.Conversation, dec types.ReplyDecision, action string) {
	if d.ledger == nil {
		return
	}
	buyer := conv.Timeline.BuyerOnly()
	last := ""
	if len(buyer) > 0 {
		last = strings.ReplaceAll(strings.TrimSpace(buyer[len(buyer)-1]), "\n", " ")
	}

	entry := types.AuditEntry{
		ID:              types.NewEntryID(),
		Timestamp:       time.Now().UTC(),
		OrderID:         conv.OrderInfo.OrderID,
		Status:          conv.OrderInfo.Status,
		Product:         conv.OrderInfo.Title,
		Variation:       conv.OrderInfo.Variation,
		SKU:             conv.OrderInfo.SKU,
		ProblemCategory: dec.Reason,
		LastBuyerText:   last,
		Action:          action,
	}
	if err := d.ledger.Append(entry); err != nil {
		d.log.Warn("audit row not recorded", "conversation", conv.ID, "error", err)
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
