// internal/types/ids.go
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

type ConversationKey string
type RunID string
type EntryID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewEntryID() EntryID {
	return EntryID(uuid.New().String())
}

// DeriveConversationKey builds the throttle/dedup key for a conversation.
// Preference order: the order ID, then a hash of the last two buyer
// messages, then the scan-index fallback. The key must stay stable across
// list re-renders, which is why the scan index is the last resort.
func DeriveConversationKey(orderID string, buyerOnly []string, fallback string) ConversationKey {
	if orderID != "" {
		return ConversationKey(orderID)
	}
	if len(buyerOnly) > 0 {
		tail := buyerOnly
		if len(tail) > 2 {
			tail = tail[len(tail)-2:]
		}
		sum := sha256.Sum256([]byte(strings.Join(tail, "|")))
		return ConversationKey(hex.EncodeToString(sum[:8]))
	}
	return ConversationKey(fallback)
}
