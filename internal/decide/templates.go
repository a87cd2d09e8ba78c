// internal/decide/templates.go
package decide

import "strings"

// Canned replies, in the shop's voice. Placeholders in {BRACES} are filled
// from OrderInfo and catalog defaults before dispatch; an unresolved
// placeholder is left visible on purpose so the operator notices it.
const (
	replyHuman = "Entendi, e obrigado por avisar 🙏. Sou do atendimento humano e vou cuidar do seu caso agora.\n" +
		"Já estou conferindo seu pedido; me diga em uma frase o principal ponto que precisa resolver primeiro."

	replyMissingParts = "Sinto muito pelo transtorno! 🙏 Vou resolver pessoalmente.\n" +
		"Envio hoje um kit de parafusos completo do seu modelo sem custo e já mando o manual (PDF + vídeo).\n" +
		"Se preferir, posso fazer reembolso parcial ou devolução com reembolso total — você escolhe.\n" +
		"Confirma o endereço para envio? Pedido: {ORDER_ID}."

	replyDeadline = "Consigo verificar! Me informa o CEP e a data que você precisa (ex.: 23/08).\n" +
		"Produção: {PROD_DIAS} dias úteis • Envio: {ENVIO_DIAS_ESTIMADO} úteis para {UF}.\n" +
		"Se estiver apertado, vejo envio expresso."

	replySinglePiece = "Este modelo vai em {PECAS} peça(s). Para tamanhos maiores enviamos em {PECAS_GRANDES} partes " +
		"por causa do transporte, com junção que não aparece de frente e kit de união incluso.\n" +
		"Se quiser peça única, dá para produzir até {LIMITE_CM} cm (consulte frete)."

	replyGoldLetters = "Fazemos sim letras douradas ✨. Pode ser pintura ou vinil dourado.\n" +
		"Envie o nome/frase e fonte preferida; mando a simulação e o valor do adicional."

	replyOrderStatus = "O status atual do pedido é {STATUS}. Assim que houver novidades, aviso por aqui."

	replyBreakageNoPhoto = "Oii, espero que esteja bem. Sinto muito por isso! Para agilizar, você poderia me enviar " +
		"uma foto do item? Assim entendo melhor e já te trago a melhor solução."

	replyBreakageWithPhoto = "Olá! Sentimos muito pelo ocorrido. Podemos resolver de 3 formas: \n" +
		"- Reembolso parcial (você fica com o produto e recebe parte do valor);\n" +
		"- Devolução pelo app (reembolso total após o retorno);\n" +
		"- Envio de nova peça (sem custo pela peça; você paga apenas o frete). " +
		"Me avisa qual prefere que eu resolvo por aqui!"

	replyPartialRefund = "Olá! Para solicitar reembolso parcial: Minhas Compras > pedido > Devolver/Reembolsar > " +
		"Reembolso Parcial. Anexe fotos e descreva o problema. Qualquer dúvida, estou aqui!"

	replyFallback = "Desculpa, não entendi. Pode explicar em uma frase?"
)

// SkipSentinel is the control marker the refinement service echoes when the
// conversation must not receive an automated reply. It is matched
// case-insensitively and must never reach the buyer.
const SkipSentinel = "Ação: skip (pular)"

// resolutionOptionsMarkers identify the three-options breakage reply in a
// seller message, so a buyer answer to it is registered instead of reprocessed.
var resolutionOptionsMarkers = []string{
	"podemos resolver de 3 formas",
	"reembolso parcial",
	"devolu",
	"envio de nova peça",
}

func fillTemplate(tpl string, params map[string]string) string {
	if len(params) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		if v == "" {
			continue
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
