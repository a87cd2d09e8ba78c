// internal/decide/intents.go
package decide

import "regexp"

// Intent labels attached to decisions for the audit trail.
const (
	IntentHuman         = "ask-human"
	IntentPixPending    = "pix-pending"
	IntentBreakage      = "breakage"
	IntentPartialRefund = "partial-refund"
	IntentMissingParts  = "missing-parts"
	IntentDeadline      = "deadline"
	IntentSinglePiece   = "single-piece"
	IntentGoldLetters   = "gold-letters"
	IntentOrderStatus   = "order-status"
	IntentFallback      = "fallback"
)

var intentLabels = map[string]bool{
	IntentHuman:         true,
	IntentPixPending:    true,
	IntentBreakage:      true,
	IntentPartialRefund: true,
	IntentMissingParts:  true,
	IntentDeadline:      true,
	IntentSinglePiece:   true,
	IntentGoldLetters:   true,
	IntentOrderStatus:   true,
	IntentFallback:      true,
}

func knownIntent(label string) bool {
	return intentLabels[label]
}

// The patterns run over normalized text (lowercase, accents stripped), so
// they are written without diacritics.
var (
	pixPendingRe = regexp.MustCompile(`\b(pix|comprovante)\b|reembolso\s+nao\s+caiu|nao\s+recebi\s+o\s+pix|nao\s+caiu`)
	askHumanRe   = regexp.MustCompile(`\b(robo|humano|pessoa|atendente|quero falar)\b`)
	breakageRe   = regexp.MustCompile(`\b(quebr\w*|rachad\w*|trincad\w*|danificad\w*|defeito)\b`)
	photoRefRe   = regexp.MustCompile(`\bfotos?\b`)
	partialRe    = regexp.MustCompile(`reembolso\s+parcial|\bparcial\b`)
	missingRe    = regexp.MustCompile(`\b(parafus|ferragem)\w*|pec[ao]s?\s*falt\w*|nao\s+veio|\bfaltando\b|sem\s+parafuso`)
	assemblyRe   = regexp.MustCompile(`\b(montar|montagem|manual|instalacao)\b|passo\s*a\s*passo`)
	deadlineRe   = regexp.MustCompile(`\b(chega|entrega)\b|consigue?m?\s+enviar|\bdia\s+\d{1,2}\b|ate\s+dia`)
	singleOneRe  = regexp.MustCompile(`peca\s*unica|vem\s+em\s+uma\s+peca|\bemendas?\b|\bem\s+partes?\b`)
	goldRe       = regexp.MustCompile(`\bdourad[ao]s?\b|pintad[ao]\s+de\s+dourado|letras\s+douradas?`)
	statusAskRe  = regexp.MustCompile(`rastre|entrega|cheg|postado|andamento|onde\s+esta|tracking|codigo|prazo\s+de\s+envio`)
)

// classifyIntent maps normalized recent buyer text to an intent label. The
// order is deliberate: policy-sensitive intents first, broad ones last.
func classifyIntent(norm string) string {
	switch {
	case norm == "":
		return IntentFallback
	case pixPendingRe.MatchString(norm):
		return IntentPixPending
	case askHumanRe.MatchString(norm):
		return IntentHuman
	case breakageRe.MatchString(norm):
		return IntentBreakage
	case partialRe.MatchString(norm):
		return IntentPartialRefund
	case missingRe.MatchString(norm) || assemblyRe.MatchString(norm):
		return IntentMissingParts
	case deadlineRe.MatchString(norm):
		return IntentDeadline
	case singleOneRe.MatchString(norm):
		return IntentSinglePiece
	case goldRe.MatchString(norm):
		return IntentGoldLetters
	case statusAskRe.MatchString(norm):
		return IntentOrderStatus
	default:
		return IntentFallback
	}
}
