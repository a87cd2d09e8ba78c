// internal/decide/engine.go
package decide

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mferraretto/chatshopee22/internal/types"
)

// RuleSource provides the ordered override table. The engine only reads it.
type RuleSource interface {
	Rules() []Rule
}

// CatalogSource provides the product catalog for template parameters.
type CatalogSource interface {
	Catalog() []Product
}

// Refiner optionally rewrites a drafted reply. Implementations must tolerate
// being unavailable; any error keeps the unrefined draft.
type Refiner interface {
	Refine(ctx context.Context, draft string, recent []string, info types.OrderInfo) (string, error)
}

// Classification is the verdict of an external intent model.
type Classification struct {
	Intent     string
	NeedsReply bool
}

// Classifier optionally replaces the regex heuristics with a richer model.
// It is advisory: unknown intents and errors fall back to the heuristics,
// and policy guards still run first.
type Classifier interface {
	Classify(ctx context.Context, recent []string) (Classification, error)
}

// Engine runs the reply decision stages in fixed order. The first stage to
// reach a definitive verdict short-circuits the rest.
type Engine struct {
	rules      RuleSource
	catalog    CatalogSource
	classifier Classifier
	refiner    Refiner
	log        *slog.Logger
}

func NewEngine(rules RuleSource, catalog CatalogSource, classifier Classifier, refiner Refiner, log *slog.Logger) *Engine {
	return &Engine{rules: rules, catalog: catalog, classifier: classifier, refiner: refiner, log: log}
}

// recentBuyerWindow is how many trailing buyer messages feed intent
// classification.
const recentBuyerWindow = 3

func skip(reason string) types.ReplyDecision {
	return types.ReplyDecision{Action: types.ActionSkip, Reason: reason}
}

func label(reason string) types.ReplyDecision {
	return types.ReplyDecision{Action: types.ActionLabel, Reason: reason}
}

func reply(text, reason string) types.ReplyDecision {
	return types.ReplyDecision{ShouldReply: true, Text: text, Action: types.ActionReply, Reason: reason}
}

// Decide computes the reply decision for one conversation. It depends only
// on its inputs and the configured rule/catalog sources.
func (e *Engine) Decide(ctx context.Context, tl types.Timeline, buyerOnly []string, info types.OrderInfo) types.ReplyDecision {
	if len(tl) == 0 || len(buyerOnly) == 0 {
		return skip("no-buyer-messages")
	}

	if answeredResolutionOptions(tl) {
		return skip("resolution-options-answered")
	}

	if verdict, text, id := applyRules(e.ruleTable(), tl.Texts()); verdict != ruleNone {
		reason := "rule"
		if id != "" {
			reason = "rule:" + id
		}
		switch verdict {
		case ruleSkip:
			e.log.Debug("rule stage skip", "rule", id)
			return skip(reason)
		case ruleLabel:
			e.log.Debug("rule stage label", "rule", id)
			return label(reason)
		}
		e.log.Debug("rule stage reply", "rule", id)
		return reply(text, reason)
	}

	if sellerOfferedResolution(tl.SellerOnly()) && !buyerRepliedAfterOffer(tl) {
		return skip("prior-offer-no-buyer-followup")
	}

	d := e.classify(ctx, buyerOnly, info)
	if !d.ShouldReply {
		return d
	}

	return e.refine(ctx, d, buyerOnly, info)
}

// classify maps the trailing buyer messages to an intent and drafts the
// matching template. The pix guard runs before any external model so the
// payment policy cannot be overridden.
func (e *Engine) classify(ctx context.Context, buyerOnly []string, info types.OrderInfo) types.ReplyDecision {
	recent := buyerOnly
	if len(recent) > recentBuyerWindow {
		recent = recent[len(recent)-recentBuyerWindow:]
	}
	norm := normalize(strings.Join(recent, " | "))
	if pixPendingRe.MatchString(norm) {
		return skip(IntentPixPending)
	}

	intent := ""
	if e.classifier != nil {
		if c, err := e.classifier.Classify(ctx, recent); err != nil {
			e.log.Debug("classifier unavailable, using heuristics", "error", err)
		} else if knownIntent(c.Intent) {
			if !c.NeedsReply {
				return skip("classifier-no-reply")
			}
			intent = c.Intent
		}
	}
	if intent == "" {
		intent = classifyIntent(norm)
	}

	switch intent {
	case IntentPixPending:
		return skip(intent)
	case IntentHuman:
		return reply(replyHuman, intent)
	case IntentBreakage:
		if photoRefRe.MatchString(norm) {
			return reply(replyBreakageWithPhoto, intent)
		}
		return reply(replyBreakageNoPhoto, intent)
	case IntentPartialRefund:
		return reply(replyPartialRefund, intent)
	case IntentMissingParts:
		text := fillTemplate(replyMissingParts, map[string]string{"ORDER_ID": info.OrderID})
		return reply(text, intent)
	case IntentDeadline:
		params := templateParams(e.matchProduct(info.Title))
		return reply(fillTemplate(replyDeadline, params), intent)
	case IntentSinglePiece:
		params := templateParams(e.matchProduct(info.Title))
		return reply(fillTemplate(replySinglePiece, params), intent)
	case IntentGoldLetters:
		return reply(replyGoldLetters, intent)
	case IntentOrderStatus:
		if info.Status != "" {
			text := fillTemplate(replyOrderStatus, map[string]string{"STATUS": info.Status})
			return reply(text, intent)
		}
		return reply(replyFallback, IntentFallback)
	default:
		return reply(replyFallback, IntentFallback)
	}
}

// refine runs the optional generative rewrite with the draft as ground
// truth. Sanitization strips wrapping quotes and control markers; the skip
// sentinel downgrades the decision to a skip.
func (e *Engine) refine(ctx context.Context, d types.ReplyDecision, buyerOnly []string, info types.OrderInfo) types.ReplyDecision {
	if e.refiner == nil {
		return d
	}
	refined, err := e.refiner.Refine(ctx, d.Text, buyerOnly, info)
	if err != nil {
		e.log.Debug("refinement unavailable, using draft", "error", err)
		return d
	}

	refined = strings.TrimSpace(refined)
	if len(refined) >= 2 {
		for _, q := range []string{`"`, `'`} {
			if strings.HasPrefix(refined, q) && strings.HasSuffix(refined, q) {
				refined = strings.TrimSpace(refined[1 : len(refined)-1])
				break
			}
		}
	}
	if refined == "" {
		return d
	}

	low := strings.ToLower(refined)
	if low == strings.ToLower(SkipSentinel) {
		return skip("refiner-skip")
	}
	if strings.HasPrefix(low, "ação:") {
		if strings.Contains(low, "skip") {
			return skip("refiner-skip")
		}
		refined = strings.TrimSpace(refined[len("ação:"):])
		if refined == "" {
			return d
		}
	}

	d.Text = refined
	return d
}

func (e *Engine) ruleTable() []Rule {
	if e.rules == nil {
		return nil
	}
	return e.rules.Rules()
}

func (e *Engine) matchProduct(title string) *Product {
	if e.catalog == nil {
		return nil
	}
	return MatchCatalog(e.catalog.Catalog(), title)
}

// answeredResolutionOptions reports the "three options" pattern: the
// seller's previous message laid out the breakage resolutions and the buyer
// has just answered. That answer is for a human to act on.
func answeredResolutionOptions(tl types.Timeline) bool {
	if len(tl) < 2 {
		return false
	}
	last, prev := tl[len(tl)-1], tl[len(tl)-2]
	if last.Role != types.RoleBuyer || prev.Role != types.RoleSeller {
		return false
	}
	norm := normalize(prev.Text)
	for _, marker := range resolutionOptionsMarkers {
		if !strings.Contains(norm, normalize(marker)) {
			return false
		}
	}
	return true
}
