// internal/extract/parse_test.go
package extract

import (
	"testing"

	"github.com/mferraretto/chatshopee22/internal/types"
)

func TestRoleFromClass(t *testing.T) {
	cases := []struct {
		class string
		role  types.Role
		keep  bool
	}{
		{"message_item lt", types.RoleBuyer, true},
		{"message_item rt watermark", types.RoleSeller, true},
		{"system_notice", "", false},
	}
	for _, c := range cases {
		role, keep := roleFromClass(c.class)
		if keep != c.keep || role != c.role {
			t.Errorf("roleFromClass(%q) = (%q, %v), want (%q, %v)", c.class, role, keep, c.role, c.keep)
		}
	}
}

func TestPickBubbleTextFallbackOrder(t *testing.T) {
	// First strategy empty, second wins.
	text, strategy := pickBubbleText([]string{"", "<div>chegou quebrado</div>", "", ""})
	if text != "chegou quebrado" {
		t.Errorf("text = %q", text)
	}
	if strategy != "text-cont" {
		t.Errorf("strategy = %q", strategy)
	}
}

func TestPickBubbleTextRejectsTimestampAndNoise(t *testing.T) {
	if text, _ := pickBubbleText([]string{"<span>12/08 14:31</span>", "", "", ""}); text != "" {
		t.Errorf("timestamp-only fragment should be rejected, got %q", text)
	}
	if text, _ := pickBubbleText([]string{"<span>FAQ History</span>", "", "", ""}); text != "" {
		t.Errorf("noise fragment should be rejected, got %q", text)
	}
}

func TestPickBubbleTextRawFallbackStripsInlineTimestamp(t *testing.T) {
	text, strategy := pickBubbleText([]string{"", "", "", "<li>12/08 14:31 cadê meu pedido</li>"})
	if text != "cadê meu pedido" {
		t.Errorf("text = %q", text)
	}
	if strategy != "raw-li" {
		t.Errorf("strategy = %q", strategy)
	}
}

func TestConsolidateStatus(t *testing.T) {
	status, strategy := consolidateStatus([]string{"To Ship", "Completed"}, nil)
	if status != "completed" || strategy != "badge-class" {
		t.Errorf("got (%q, %q)", status, strategy)
	}

	status, strategy = consolidateStatus(nil, []string{"algum texto longo irrelevante", "Entregue"})
	if status != "Entregue" || strategy != "keyword-scan" {
		t.Errorf("got (%q, %q)", status, strategy)
	}

	if status, _ := consolidateStatus(nil, nil); status != "" {
		t.Errorf("no signal should give empty status, got %q", status)
	}
}

func TestExtractOrderID(t *testing.T) {
	if got := extractOrderID("Order ID #250814AB12CD Payment Time: hoje"); got != "250814AB12CD" {
		t.Errorf("hash-prefixed id, got %q", got)
	}
	if got := extractOrderID("pedido 2508149921AB pago"); got != "2508149921AB" {
		t.Errorf("bare id, got %q", got)
	}
	if got := extractOrderID("sem identificador aqui"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestPickProductCard(t *testing.T) {
	cards := []cardCandidate{
		{Text: "banner promocional"},
		{Text: "Painel Lua SKU: LUA-60 Variation: Azul", TitleText: "Painel Lua 60cm", HasMarkerClass: true},
		{Text: "SKU: OUTRO-1"},
	}
	card := pickProductCard(cards)
	if card == nil || card.TitleText != "Painel Lua 60cm" {
		t.Fatalf("wrong card picked: %+v", card)
	}

	if pickProductCard([]cardCandidate{{Text: "nada"}}) != nil {
		t.Error("zero-score candidates should give nil")
	}
}

func TestVariationAndSKUParsing(t *testing.T) {
	card := "Painel Festa\nVariation: Azul / Tam M\nSKU: PF-AZ-M\nBuyer payment amount: R$ 89,90"

	if got := parseVariation(card); got != "Azul / Tam M" {
		t.Errorf("variation = %q", got)
	}
	if got := parseSKU(card); got != "PF-AZ-M" {
		t.Errorf("sku = %q", got)
	}
}

func TestHarvestFields(t *testing.T) {
	fields := harvestFields([]string{
		"Variation: Azul / Tam M",
		"Logistics Status: Delivered",
		"Completed Time: 2025-08-14 10:22",
		"x: y", // key too short
		"sem rotulo nenhum",
	})

	if fields["Variation"] != "Azul / Tam M" {
		t.Errorf("Variation = %q", fields["Variation"])
	}
	if fields["Logistics Status"] != "Delivered" {
		t.Errorf("Logistics Status = %q", fields["Logistics Status"])
	}
	if _, ok := fields["x"]; ok {
		t.Error("short keys should be rejected")
	}
	if len(fields) != 3 {
		t.Errorf("fields = %v", fields)
	}
}

func TestExtractTracking(t *testing.T) {
	if got := extractTracking("seu rastreio BR123456789XYZ saiu"); got != "BR123456789XYZ" {
		t.Errorf("tracking = %q", got)
	}
	if got := extractTracking("sem codigo"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
