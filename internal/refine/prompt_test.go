// internal/refine/prompt_test.go
package refine

import (
	"strings"
	"testing"

	"github.com/mferraretto/chatshopee22/internal/types"
)

func TestHistoryBudgetKeepsNewestMessages(t *testing.T) {
	b, err := newHistoryBudget(20)
	if err != nil {
		t.Fatalf("newHistoryBudget failed: %v", err)
	}

	recent := []string{
		"primeira mensagem bem antiga que deveria ser cortada do bloco",
		"mensagem do meio",
		"última mensagem",
	}
	block := b.block(recent)

	if !strings.Contains(block, "última mensagem") {
		t.Errorf("block dropped the newest message: %q", block)
	}
	if strings.Contains(block, "bem antiga") {
		t.Errorf("block kept a message beyond the budget: %q", block)
	}
}

func TestHistoryBudgetAlwaysKeepsAtLeastOne(t *testing.T) {
	b, err := newHistoryBudget(1)
	if err != nil {
		t.Fatal(err)
	}
	block := b.block([]string{"uma mensagem maior que o orçamento de um token"})
	if block == "" {
		t.Error("block must keep the newest message even over budget")
	}
}

func TestHistoryBudgetPreservesOrder(t *testing.T) {
	b, err := newHistoryBudget(10000)
	if err != nil {
		t.Fatal(err)
	}
	block := b.block([]string{"um", "dois"})
	if strings.Index(block, "um") > strings.Index(block, "dois") {
		t.Errorf("messages out of order: %q", block)
	}
}

func TestOrderStage(t *testing.T) {
	cases := []struct {
		name string
		info types.OrderInfo
		want string
	}{
		{"no data", types.OrderInfo{}, "pre_venda"},
		{"paid", types.OrderInfo{OrderID: "250814AB12CD"}, "pos_venda"},
		{"shipped", types.OrderInfo{Status: "shipped"}, "enviado"},
		{"delivered status", types.OrderInfo{Status: "entregue"}, "entregue"},
		{"completed time", types.OrderInfo{
			OrderID: "250814AB12CD",
			Fields:  map[string]string{"Completed Time": "2025-08-14 10:22"},
		}, "entregue"},
	}
	for _, tc := range cases {
		got := orderStage(tc.info)
		if !strings.Contains(got, "estado_pedido: "+tc.want) {
			t.Errorf("%s: stage context %q, want stage %s", tc.name, got, tc.want)
		}
	}
}

func TestRefinePromptCarriesDraftAndContext(t *testing.T) {
	info := types.OrderInfo{OrderID: "250814AB12CD", Status: "to ship"}
	p := refinePrompt("Oi! Pode mandar uma foto?", "Cliente: chegou rachado", info)

	for _, want := range []string{"250814AB12CD", "chegou rachado", "Pode mandar uma foto?", "[Rascunho]"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestStripFences(t *testing.T) {
	in := "```json\n{\"intent\": \"breakage\", \"needs_reply\": true}\n```"
	got := stripFences(in)
	if got != `{"intent": "breakage", "needs_reply": true}` {
		t.Errorf("stripFences = %q", got)
	}
	if stripFences("plain") != "plain" {
		t.Error("plain text must pass through")
	}
}
