// internal/types/models.go
package types

import (
	"strings"
	"time"
)

// Role identifies which side of the conversation sent a message.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// Message is one chat bubble. System/notice bubbles are never retained.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Timeline is a chronologically ordered message window. It is re-read from
// the page on every cycle rather than kept as an incremental log.
type Timeline []Message

// BuyerOnly returns the texts of buyer messages, preserving relative order.
func (t Timeline) BuyerOnly() []string {
	var out []string
	for _, m := range t {
		if m.Role == RoleBuyer {
			out = append(out, m.Text)
		}
	}
	return out
}

// SellerOnly returns the texts of seller messages, preserving relative order.
func (t Timeline) SellerOnly() []string {
	var out []string
	for _, m := range t {
		if m.Role == RoleSeller {
			out = append(out, m.Text)
		}
	}
	return out
}

// Texts returns every message text regardless of role, in order.
func (t Timeline) Texts() []string {
	out := make([]string, len(t))
	for i, m := range t {
		out[i] = m.Text
	}
	return out
}

// Tail returns the trailing n messages.
func (t Timeline) Tail(n int) Timeline {
	if n <= 0 || len(t) <= n {
		return t
	}
	return t[len(t)-n:]
}

// OrderInfo is the structured order sidebar plus the open Fields map. Fields
// captures every recognized "Label: Value" fragment so that operational
// values (Logistics Status, Completed Time, ...) survive selector drift.
type OrderInfo struct {
	OrderID   string            `json:"order_id"`
	Status    string            `json:"status"`
	Title     string            `json:"title"`
	Variation string            `json:"variation"`
	SKU       string            `json:"sku"`
	BuyerName string            `json:"buyer_name"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Field looks up a labeled sidebar value by case-insensitive label prefix.
func (o OrderInfo) Field(labelPrefix string) string {
	for k, v := range o.Fields {
		if strings.HasPrefix(strings.ToLower(k), strings.ToLower(labelPrefix)) {
			return v
		}
	}
	return ""
}

// Conversation is one open buyer/seller thread. ID is derived from page
// content (order header, product link, account name), never the list index.
type Conversation struct {
	ID        ConversationKey `json:"id"`
	ScanIndex int             `json:"scan_index"`
	OrderInfo OrderInfo       `json:"order_info"`
	Timeline  Timeline        `json:"timeline"`
}

// Action is what the dispatcher does with a decision.
type Action string

const (
	ActionReply Action = "reply"
	ActionSkip  Action = "skip"
	ActionLabel Action = "label"
)

// ReplyDecision is the decision-engine verdict for one conversation.
type ReplyDecision struct {
	ShouldReply bool   `json:"should_reply"`
	Text        string `json:"text"`
	Action      Action `json:"action"`
	Reason      string `json:"reason,omitempty"`
}

// AuditEntry is one append-only ledger row. Entries are recorded for skipped
// conversations too, so downstream analytics sees full coverage.
type AuditEntry struct {
	ID              EntryID   `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	OrderID         string    `json:"order_id"`
	Status          string    `json:"status"`
	Product         string    `json:"product"`
	Variation       string    `json:"variation"`
	SKU             string    `json:"sku"`
	ProblemCategory string    `json:"problem_category"`
	LastBuyerText   string    `json:"last_buyer_text"`
	// Action is the dispatch outcome: replied, skipped or send-failed.
	Action string `json:"action"`
}

// SessionState is the authentication state machine of the browser session.
type SessionState string

const (
	SessionUnauthenticated   SessionState = "unauthenticated"
	SessionAwaitingTwoFactor SessionState = "awaiting_2fa"
	SessionAuthenticated     SessionState = "authenticated"
)

// Snapshot is the periodic observational push for UI mirroring. It never
// feeds back into engine state.
type Snapshot struct {
	ScreenImage   []byte    `json:"screen_image,omitempty"`
	Timeline      Timeline  `json:"timeline"`
	ProposedReply string    `json:"proposed_reply"`
	Running       bool      `json:"running"`
	TakenAt       time.Time `json:"taken_at"`
}
