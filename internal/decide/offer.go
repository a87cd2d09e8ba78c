// internal/decide/offer.go
package decide

import (
	"regexp"

	"github.com/mferraretto/chatshopee22/internal/types"
)

// offerRe recognizes a seller message that already put a concrete resolution
// on the table: refund, exchange, reshipment or return. It runs on
// normalized text.
var offerRe = regexp.MustCompile(
	`reembols\w+|estorno|troca(r|remos)?|efetuar\s+a?\s*troca|reenviar|reenvio|enviar\s+(a\s+)?peca\s+(faltante|que\s+faltou)|devolucao`,
)

// sellerOfferedResolution reports whether any seller message contains an
// offer marker.
func sellerOfferedResolution(sellerMsgs []string) bool {
	for _, m := range sellerMsgs {
		if offerRe.MatchString(normalize(m)) {
			return true
		}
	}
	return false
}

// buyerRepliedAfterOffer reports whether the buyer spoke again after the
// seller's last offer. When false, the buyer is still considering and must
// not be nagged.
func buyerRepliedAfterOffer(tl types.Timeline) bool {
	lastOffer := -1
	for i, m := range tl {
		if m.Role == types.RoleSeller && offerRe.MatchString(normalize(m.Text)) {
			lastOffer = i
		}
	}
	if lastOffer < 0 {
		return false
	}
	for _, m := range tl[lastOffer+1:] {
		if m.Role == types.RoleBuyer {
			return true
		}
	}
	return false
}
