// internal/types/models_test.go
package types

import (
	"reflect"
	"testing"
)

func TestTimelineBuyerOnlyPreservesOrder(t *testing.T) {
	tl := Timeline{
		{Role: RoleBuyer, Text: "oi"},
		{Role: RoleSeller, Text: "olá"},
		{Role: RoleBuyer, Text: "chegou quebrado"},
		{Role: RoleBuyer, Text: "tem como trocar?"},
		{Role: RoleSeller, Text: "claro"},
	}

	got := tl.BuyerOnly()
	want := []string{"oi", "chegou quebrado", "tem como trocar?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuyerOnly() = %v, want %v", got, want)
	}
}

func TestTimelineTail(t *testing.T) {
	tl := Timeline{
		{Role: RoleBuyer, Text: "a"},
		{Role: RoleSeller, Text: "b"},
		{Role: RoleBuyer, Text: "c"},
	}

	if got := tl.Tail(2); len(got) != 2 || got[0].Text != "b" {
		t.Errorf("Tail(2) = %v", got)
	}
	if got := tl.Tail(10); len(got) != 3 {
		t.Errorf("Tail(10) should return all messages, got %d", len(got))
	}
	if got := tl.Tail(0); len(got) != 3 {
		t.Errorf("Tail(0) should return all messages, got %d", len(got))
	}
}

func TestDeriveConversationKey(t *testing.T) {
	if got := DeriveConversationKey("250814ABCDEF", nil, "0"); got != "250814ABCDEF" {
		t.Errorf("order ID should win, got %s", got)
	}

	k1 := DeriveConversationKey("", []string{"oi", "sumiu", "cadê"}, "0")
	k2 := DeriveConversationKey("", []string{"outra coisa", "sumiu", "cadê"}, "5")
	if k1 != k2 {
		t.Error("key should depend only on the last two buyer messages")
	}
	if k1 == "" || k1 == "0" {
		t.Errorf("expected hashed key, got %q", k1)
	}

	if got := DeriveConversationKey("", nil, "7"); got != "7" {
		t.Errorf("fallback should be scan index, got %s", got)
	}
}

func TestOrderInfoField(t *testing.T) {
	info := OrderInfo{Fields: map[string]string{
		"Logistics Status":             "Delivered",
		"Latest Logistics Description": "Pedido entregue",
	}}

	if got := info.Field("logistics status"); got != "Delivered" {
		t.Errorf("Field lookup is case-insensitive, got %q", got)
	}
	if got := info.Field("tracking number"); got != "" {
		t.Errorf("missing field should be empty, got %q", got)
	}
}
