// internal/notify/telegram.go
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mferraretto/chatshopee22/internal/engine"
)

const maxTelegramMessage = 4096

// Controller is the slice of the engine the operator drives over chat.
type Controller interface {
	Status() engine.Status
	TakeControl()
	ReleaseControl()
	Skip() error
	RunOnce(ctx context.Context) error
	SubmitTwoFactorCode(ctx context.Context, code string) error
	SendManualReply(ctx context.Context, text string) error
}

// Telegram pushes operator alerts and long-polls for control commands.
// Commands are accepted only from the configured chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	eng    Controller
	log    *slog.Logger
}

func New(token string, chatID int64, eng Controller, log *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, eng: eng, log: log}, nil
}

// Notify pushes an alert to the operator chat. Best effort.
func (t *Telegram) Notify(text string) {
	t.send(t.chatID, text)
}

// Start begins long-polling for commands until the context ends.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := t.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			t.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		}
	}
}

func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat.ID != t.chatID {
		t.log.Warn("command from unknown chat ignored", "chat", msg.Chat.ID)
		return
	}
	if !msg.IsCommand() {
		t.send(msg.Chat.ID, "Use um comando: /status, /pause, /resume, /skip, /run, /code, /reply")
		return
	}
	t.send(msg.Chat.ID, t.execute(ctx, msg.Command(), strings.TrimSpace(msg.CommandArguments())))
}

// execute maps one operator command to an engine call and returns the chat
// reply.
func (t *Telegram) execute(ctx context.Context, command, args string) string {
	switch command {
	case "status":
		return formatStatus(t.eng.Status())

	case "pause":
		t.eng.TakeControl()
		return "Automação pausada. O navegador é seu; use /resume para devolver."

	case "resume":
		t.eng.ReleaseControl()
		return "Automação retomada."

	case "skip":
		if err := t.eng.Skip(); err != nil {
			return "Nada para pular: " + err.Error()
		}
		return "Conversa atual ignorada por um ciclo."

	case "run":
		if err := t.eng.RunOnce(ctx); err != nil {
			return "Ciclo falhou: " + err.Error()
		}
		return "Ciclo único concluído."

	case "code":
		if args == "" {
			return "Uso: /code <código de verificação>"
		}
		if err := t.eng.SubmitTwoFactorCode(ctx, args); err != nil {
			return "Código recusado: " + err.Error()
		}
		return "Código aceito, sessão autenticada."

	case "reply":
		if args == "" {
			return "Uso: /reply <texto da resposta>"
		}
		if err := t.eng.SendManualReply(ctx, args); err != nil {
			return "Envio falhou: " + err.Error()
		}
		return "Resposta manual enviada."

	default:
		return "Comando desconhecido. Disponíveis: /status, /pause, /resume, /skip, /run, /code, /reply"
	}
}

func formatStatus(st engine.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rodando: %v\nPausado: %v\nSessão: %s", st.Running, st.Paused, st.Session)
	if st.LastError != "" {
		fmt.Fprintf(&b, "\nÚltimo erro: %s", st.LastError)
	}
	return b.String()
}

func (t *Telegram) send(chatID int64, text string) {
	if t.bot == nil || chatID == 0 {
		return
	}
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		if _, err := t.bot.Send(msg); err != nil {
			t.log.Warn("telegram send failed", "error", err)
		}
	}
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
