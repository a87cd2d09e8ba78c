// internal/state/snapshot.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mferraretto/chatshopee22/internal/types"
)

// ConversationRecord is one line of the conversation journal: what the
// engine saw and what it decided, for later inspection.
type ConversationRecord struct {
	TakenAt    time.Time             `json:"taken_at"`
	Key        types.ConversationKey `json:"key"`
	OrderID    string                `json:"order_id,omitempty"`
	BuyerLast  []string              `json:"buyer_last,omitempty"`
	SellerLast []string              `json:"seller_last,omitempty"`
	Action     types.Action          `json:"action"`
	Reason     string                `json:"reason,omitempty"`
}

// journalTail bounds how many trailing messages a record keeps per role.
const journalTail = 5

// SnapshotStore appends conversation records to a JSON-lines journal.
type SnapshotStore struct {
	path string
	mu   sync.Mutex
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Record journals one handled conversation.
func (s *SnapshotStore) Record(conv *types.Conversation, dec types.ReplyDecision) error {
	rec := ConversationRecord{
		TakenAt:    time.Now().UTC(),
		Key:        conv.ID,
		OrderID:    conv.OrderInfo.OrderID,
		BuyerLast:  tail(conv.Timeline.BuyerOnly(), journalTail),
		SellerLast: tail(conv.Timeline.SellerOnly(), journalTail),
		Action:     dec.Action,
		Reason:     dec.Reason,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func tail(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
