// internal/extract/extractor.go
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mferraretto/chatshopee22/internal/browser"
	"github.com/mferraretto/chatshopee22/internal/types"
)

// Extractor reads the opened conversation's message timeline and order
// sidebar into structured records. Every field has ordered fallback
// strategies; a partial failure degrades that field to empty instead of
// aborting the read.
type Extractor struct {
	page browser.Page
	sel  browser.Selectors
	log  *slog.Logger
}

func New(page browser.Page, sel browser.Selectors, log *slog.Logger) *Extractor {
	return &Extractor{page: page, sel: sel, log: log}
}

type rawBubble struct {
	Class      string   `json:"cls"`
	Candidates []string `json:"candidates"`
}

// ReadTimeline returns the trailing depth messages of the open conversation.
// Bubbles whose class marks them as system notices are dropped; buyer/seller
// classification comes from the left/right alignment classes.
func (e *Extractor) ReadTimeline(ctx context.Context, depth int) (types.Timeline, error) {
	e.ensureMessagesRendered(ctx)

	js := `Array.from(document.querySelectorAll(` + jsString(e.sel.MessageItems) + `)).map(li => {
		const picks = [];
		for (const sel of ['.msg_cont .msg_text .text_cont', '.text_cont', '.quote_content_wrap_new']) {
			const n = li.querySelector(sel);
			picks.push(n ? n.innerHTML : '');
		}
		picks.push(li.innerHTML || '');
		return {cls: li.className || '', candidates: picks};
	})`

	var bubbles []rawBubble
	if err := e.page.Eval(ctx, js, &bubbles); err != nil {
		return nil, fmt.Errorf("read message items: %w", err)
	}

	strategyHits := map[string]int{}
	var tl types.Timeline
	for _, b := range bubbles {
		role, ok := roleFromClass(b.Class)
		if !ok {
			continue
		}
		text, strategy := pickBubbleText(b.Candidates)
		if text == "" {
			continue
		}
		strategyHits[strategy]++
		tl = append(tl, types.Message{Role: role, Text: text})
	}

	e.log.Debug("timeline read", "messages", len(tl), "strategies", strategyHits)
	return tl.Tail(depth), nil
}

// ensureMessagesRendered waits for the container and nudges the virtualized
// list so the tail of the history is materialized. Best effort.
func (e *Extractor) ensureMessagesRendered(ctx context.Context) {
	if err := e.page.WaitVisible(ctx, e.sel.MessagesContainer, 12*time.Second); err != nil {
		return
	}
	js := `(() => {
		const el = document.querySelector(` + jsString(e.sel.MessagesContainer) + `);
		if (el) el.scrollTop = el.scrollHeight;
		return true;
	})()`
	var ok bool
	e.page.Eval(ctx, js, &ok)
	e.page.Sleep(ctx, 250*time.Millisecond)
}

type rawSidebar struct {
	PanelText  string          `json:"panelText"`
	Badges     []string        `json:"badges"`
	ShortTexts []string        `json:"shortTexts"`
	Cards      []cardCandidate `json:"cards"`
	Fragments  []string        `json:"fragments"`
}

// ReadOrderInfo harvests the order sidebar and parses it field by field.
// The harvest is one page evaluation; all interpretation happens here so a
// drifting layout degrades individual fields, never the whole read.
func (e *Extractor) ReadOrderInfo(ctx context.Context) (types.OrderInfo, error) {
	js := `(() => {
		const norm = (s) => (s || '').replace(/\s+/g, ' ').trim();

		const panels = Array.from(document.querySelectorAll('div,section,article'));
		let right = panels.find(el => /Buyer payment amount|Payment Time|Variation:|Varia[cç][aã]o:|SKU\s*:/i.test(el.textContent || ''));
		if (!right) right = document.body;

		const badges = Array.from(right.querySelectorAll(` + jsString(e.sel.StatusBadge) + ` + ', [class*="order_item_status_tags"] .el-tag, .el-tag'))
			.map(el => norm(el.textContent)).filter(Boolean);

		const shortTexts = Array.from(right.querySelectorAll('span'))
			.map(el => norm(el.textContent)).filter(t => t && t.length <= 32);

		const cards = Array.from(right.querySelectorAll('div,section,article')).map(el => {
			const titleNode =
				el.querySelector('.product_name, [class*="product_name"], .line_clamp_2, a[title]') ||
				el.querySelector('a, [class*="title"], [class*="products_item"]') ||
				el;
			return {
				text: el.textContent || '',
				title: titleNode ? (titleNode.textContent || '') : '',
				hasMarkerClass: !!el.querySelector('.product_name, .order_item, .order_title, .dk_msg_order'),
			};
		}).filter(c => c.text.length < 4000);

		const fragments = Array.from(right.querySelectorAll('*'))
			.map(el => norm(el.textContent))
			.filter(t => t && t.length < 200 && t.includes(':'));

		return {panelText: norm(right.textContent), badges, shortTexts, cards, fragments};
	})()`

	var raw rawSidebar
	if err := e.page.Eval(ctx, js, &raw); err != nil {
		return types.OrderInfo{}, fmt.Errorf("harvest order sidebar: %w", err)
	}

	info := types.OrderInfo{
		OrderID: extractOrderID(raw.PanelText),
		Fields:  harvestFields(raw.Fragments),
	}

	status, strategy := consolidateStatus(raw.Badges, raw.ShortTexts)
	info.Status = status
	if strategy != "" {
		e.log.Debug("order status resolved", "status", status, "strategy", strategy)
	}

	if card := pickProductCard(raw.Cards); card != nil {
		info.Title = parseTitle(card.TitleText)
		info.Variation = parseVariation(card.Text)
		info.SKU = parseSKU(card.Text)
	}

	// Buyer name comes from the chat header, outside the panel.
	if name, err := e.page.Text(ctx, e.sel.BuyerName); err == nil {
		info.BuyerName = cleanText(name)
	}

	// Tracking number is best effort and only ever informational.
	if info.Field("tracking number") == "" {
		if tracking := extractTracking(raw.PanelText); tracking != "" {
			if info.Fields == nil {
				info.Fields = make(map[string]string)
			}
			info.Fields["Tracking Number"] = tracking
		}
	}

	return info, nil
}

// jsString quotes a Go string as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
