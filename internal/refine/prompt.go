// internal/refine/prompt.go
package refine

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/mferraretto/chatshopee22/internal/types"
)

// systemPrompt fixes the rewrite policy. The draft is the ground truth: the
// model polishes tone and length but must not change what is being offered.
const systemPrompt = `Você é um vendedor empático e acolhedor de uma loja na Shopee.
Sua tarefa é reescrever o rascunho de resposta abaixo em 1–2 frases claras e educadas, mantendo o mesmo conteúdo.

REGRAS (obrigatórias):
- Não prometa data exata de entrega (a logística da Shopee define).
- Nunca inclua rastreio ou status do pedido na resposta (use o contexto APENAS para evitar contradições).
- Não mude as opções oferecidas no rascunho; apenas melhore a redação.
- Se faltar informação essencial, peça um único esclarecimento objetivo.
- Se o cliente falar de PIX, comprovante ou reembolso que "não caiu", devolva exatamente: Ação: skip (pular)

FORMATO DE SAÍDA:
- Apenas a mensagem final ao cliente (1–2 frases), sem análises, sem "ID:", sem "Resposta:".`

// classifyPrompt asks for a strict JSON verdict.
const classifyPrompt = `Você analisa mensagens de compradores de uma loja na Shopee.
Classifique a intenção das mensagens em um destes rótulos:
ask-human, pix-pending, breakage, partial-refund, missing-parts, deadline, single-piece, gold-letters, order-status, fallback.

Responda APENAS com JSON neste formato, sem texto extra:
{"intent": "<rótulo>", "needs_reply": true|false}

needs_reply é false quando a conversa já está resolvida (agradecimento, despedida) ou quando o assunto é PIX/comprovante pendente.`

// historyBudget caps the conversation block fed into a prompt.
type historyBudget struct {
	enc    *tiktoken.Tiktoken
	tokens int
}

func newHistoryBudget(tokens int) (*historyBudget, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load token encoding: %w", err)
	}
	return &historyBudget{enc: enc, tokens: tokens}, nil
}

// block renders the newest messages that fit the token budget, oldest first.
func (b *historyBudget) block(recent []string) string {
	if len(recent) == 0 {
		return ""
	}
	var kept []string
	used := 0
	for i := len(recent) - 1; i >= 0; i-- {
		line := "Cliente: " + strings.TrimSpace(recent[i])
		cost := len(b.enc.Encode(line, nil, nil))
		if used+cost > b.tokens && len(kept) > 0 {
			break
		}
		kept = append([]string{line}, kept...)
		used += cost
	}
	return strings.Join(kept, "\n")
}

// orderStage summarizes where the order is in its life cycle, so the model
// never contradicts logistics reality. The value is context, not output.
func orderStage(info types.OrderInfo) string {
	status := strings.ToLower(info.Status)
	latest := strings.ToLower(info.Field("Latest Logistics Description"))
	completed := info.Field("Completed Time")

	shipped := []string{"shipped", "enviado", "a caminho", "in transit", "out for delivery", "despachado"}
	delivered := []string{"delivered", "entregue", "completed", "finalizado", "concluído"}

	stage := "pre_venda"
	switch {
	case completed != "" || containsAnyOf(status, delivered):
		stage = "entregue"
	case containsAnyOf(status, shipped) || strings.Contains(latest, "pedido entregue"):
		stage = "enviado"
	case info.OrderID != "" || info.Field("Payment Time") != "" ||
		containsAnyOf(status, []string{"to ship", "ready to ship"}):
		stage = "pos_venda"
	}

	return fmt.Sprintf(
		"estado_pedido: %s\norder_id: %s\nstatus: %s\npayment_time: %s\nlogistics_status: %s\ncompleted_time: %s\n",
		stage,
		info.OrderID,
		info.Status,
		info.Field("Payment Time"),
		info.Field("Logistics Status"),
		completed,
	)
}

func containsAnyOf(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func refinePrompt(draft, history string, info types.OrderInfo) string {
	return fmt.Sprintf(
		"[Contexto do Pedido]\n%s\n[Conversa]\n%s\n\n[Rascunho]\n%s",
		orderStage(info), history, draft,
	)
}
