// internal/extract/parse.go
package extract

import (
	"regexp"
	"sort"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/mferraretto/chatshopee22/internal/types"
)

// Fragments the console injects between real messages.
var noiseFragments = []string{
	"FAQ History",
	"[The referenced message cannot be found]",
}

var (
	tsOnlyRe   = regexp.MustCompile(`^\d{2}/\d{2}\s+\d{2}:\d{2}$`)
	inlineTsRe = regexp.MustCompile(`\b\d{2}/\d{2}\s+\d{2}:\d{2}\b`)
	spaceRe    = regexp.MustCompile(`\s+`)

	hashOrderIDRe  = regexp.MustCompile(`#([A-Z0-9]{8,})\b`)
	plainOrderIDRe = regexp.MustCompile(`\b[0-9A-Z]{10,}\b`)

	variationRe = regexp.MustCompile(`(?i)(?:variation|varia[cç][aã]o)\s*:\s*(.+)`)
	skuRe       = regexp.MustCompile(`(?i)\bSKU\s*:\s*([A-Za-z0-9\-\._]+)`)
	labelRe     = regexp.MustCompile(`^([^:]{3,}):\s*(.+)$`)

	statusKeywordRe = regexp.MustCompile(`(?i)shipped|enviado|to ship|a caminho|entregue|ready to ship|to return|returned|cancelado|canceled`)
	trackingRe      = regexp.MustCompile(`\b([A-Z]{2}\d{8,}[A-Z0-9]+)\b`)
)

// bubbleStrategies names the nested-selector fallbacks tried per message
// bubble, in order. The indexes line up with the candidate lists the page
// harvest returns.
var bubbleStrategies = []string{"msg-text", "text-cont", "quote", "raw-li"}

func cleanText(t string) string {
	t = strings.ReplaceAll(t, "​", "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(t, " "))
}

func isNoise(t string) bool {
	low := strings.ToLower(t)
	for _, n := range noiseFragments {
		if strings.Contains(low, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// htmlToText renders a bubble's innerHTML into readable text. Markdown is a
// convenient normal form: it keeps line breaks and link targets without the
// tags. A conversion failure falls back to a crude tag strip.
func htmlToText(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return cleanText(stripTags(html))
	}
	return cleanText(md)
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(html string) string {
	return tagRe.ReplaceAllString(html, " ")
}

// roleFromClass classifies a bubble from its structural class marker:
// left-aligned items are the buyer, right-aligned the seller. Anything else
// is a system notice and is dropped.
func roleFromClass(class string) (types.Role, bool) {
	low := strings.ToLower(class)
	switch {
	case strings.Contains(low, "lt"):
		return types.RoleBuyer, true
	case strings.Contains(low, "rt"):
		return types.RoleSeller, true
	default:
		return "", false
	}
}

// pickBubbleText tries each candidate (one per strategy, in order) and
// returns the first usable text plus the name of the strategy that won.
func pickBubbleText(candidates []string) (string, string) {
	for i, html := range candidates {
		if html == "" {
			continue
		}
		t := htmlToText(html)
		if i == len(candidates)-1 {
			// Raw <li> fallback still carries the timestamp, and the
			// markdown pass may have rendered a list bullet.
			t = cleanText(inlineTsRe.ReplaceAllString(t, ""))
			t = strings.TrimPrefix(t, "- ")
		}
		if t == "" || tsOnlyRe.MatchString(t) || isNoise(t) {
			continue
		}
		name := "raw-li"
		if i < len(bubbleStrategies) {
			name = bubbleStrategies[i]
		}
		return t, name
	}
	return "", ""
}

// statusRank orders normalized statuses when several badges are visible; the
// most advanced one wins.
var statusRank = map[string]int{
	"cancelled":     100,
	"completed":     90,
	"ready to ship": 60,
	"to ship":       50,
	"to pack":       40,
	"to pay":        10,
}

func normalizeStatus(s string) string {
	low := strings.ToLower(s)
	switch {
	case strings.Contains(low, "cancel"):
		return "cancelled"
	case strings.Contains(low, "complete"), strings.Contains(low, "deliver"):
		return "completed"
	case strings.Contains(low, "ready to ship"):
		return "ready to ship"
	case strings.Contains(low, "to ship"):
		return "to ship"
	case strings.Contains(low, "to pack"):
		return "to pack"
	case strings.Contains(low, "to pay"):
		return "to pay"
	default:
		return "unknown"
	}
}

// consolidateStatus picks the status. Strategy order: badge texts from the
// status tag, then a keyword scan over short text nodes.
func consolidateStatus(badges, shortTexts []string) (status, strategy string) {
	if len(badges) > 0 {
		best := "unknown"
		for _, b := range badges {
			n := normalizeStatus(b)
			if statusRank[n] >= statusRank[best] && n != "unknown" {
				best = n
			}
		}
		if best != "unknown" {
			return best, "badge-class"
		}
	}
	for _, t := range shortTexts {
		t = cleanText(t)
		if t != "" && len(t) <= 32 && statusKeywordRe.MatchString(t) {
			return cleanText(t), "keyword-scan"
		}
	}
	return "", ""
}

// extractOrderID pulls the order identifier from the panel's full text:
// hash-prefixed token first, then a bare long alphanumeric token.
func extractOrderID(panelText string) string {
	if m := hashOrderIDRe.FindStringSubmatch(panelText); m != nil {
		return m[1]
	}
	if m := plainOrderIDRe.FindString(panelText); m != "" {
		return m
	}
	return ""
}

// cardCandidate is one sidebar block considered as the "product card".
type cardCandidate struct {
	Text           string `json:"text"`
	TitleText      string `json:"title"`
	HasMarkerClass bool   `json:"hasMarkerClass"`
}

func (c cardCandidate) score() int {
	score := 0
	if skuRe.MatchString(c.Text) {
		score++
	}
	if variationRe.MatchString(c.Text) {
		score++
	}
	if strings.Contains(c.Text, "Buyer payment amount") {
		score++
	}
	if strings.Contains(c.Text, "Payment Time") {
		score++
	}
	if c.HasMarkerClass {
		score++
	}
	return score
}

// pickProductCard scores candidates by the presence of SKU/Variation labels,
// payment markers, and known classes, preferring higher scores then longer
// text. Returns nil when nothing scored.
func pickProductCard(cards []cardCandidate) *cardCandidate {
	scored := make([]cardCandidate, 0, len(cards))
	for _, c := range cards {
		if c.score() > 0 {
			scored = append(scored, c)
		}
	}
	if len(scored) == 0 {
		return nil
	}
	sort.SliceStable(scored, func(i, j int) bool {
		si, sj := scored[i].score(), scored[j].score()
		if si != sj {
			return si > sj
		}
		return len(scored[i].Text) > len(scored[j].Text)
	})
	return &scored[0]
}

func parseTitle(titleText string) string {
	for _, line := range strings.Split(titleText, "\n") {
		if t := cleanText(line); t != "" {
			return t
		}
	}
	return ""
}

func parseVariation(cardText string) string {
	m := variationRe.FindStringSubmatch(cardText)
	if m == nil {
		return ""
	}
	first := strings.SplitN(m[1], "\n", 2)[0]
	return cleanText(first)
}

func parseSKU(cardText string) string {
	m := skuRe.FindStringSubmatch(cardText)
	if m == nil {
		return ""
	}
	return cleanText(m[1])
}

// harvestFields turns every "Label: Value"-shaped fragment into an entry of
// the open fields map. This is the resilience net: even when the named
// selectors stop matching, label scraping still recovers the operational
// fields the decision pipeline needs.
func harvestFields(fragments []string) map[string]string {
	fields := make(map[string]string)
	for _, f := range fragments {
		t := cleanText(f)
		m := labelRe.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		key, val := cleanText(m[1]), cleanText(m[2])
		if key == "" || val == "" || len(key) > 64 {
			continue
		}
		fields[key] = val
	}
	return fields
}

// extractTracking finds a carrier tracking code in free text, best effort.
func extractTracking(text string) string {
	if m := trackingRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
