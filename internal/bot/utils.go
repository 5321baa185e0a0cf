package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/audit"
)

const (
	textLookupUsage     = "Sintaxis incorrecta. Uso: /buscar <texto>"
	textLookupFailed    = "Ahora mismo no puedo consultar la base de datos de socios. Inténtalo de nuevo en unos minutos."
	textHistoryUsage    = "Sintaxis incorrecta. Uso: /historial <id de usuario>"
	textHistoryDisabled = "El historial de decisiones no está activado."
	textHistoryFailed   = "No he podido consultar el historial de decisiones."
)

func idText(msg *tgbotapi.Message) string {
	text := fmt.Sprintf("ID usuario: %d", msg.From.ID)
	if !msg.Chat.IsPrivate() {
		text += fmt.Sprintf("\nID chat: %d", msg.Chat.ID)
	}
	return text
}

var outcomeLabels = map[string]string{
	"approved":      "✅ aprobado",
	"denied":        "⛔️ denegado",
	"undeliverable": "⚠️ bot bloqueado",
	"aborted":       "⚠️ sin decisión",
	"expired":       "⌛ caducado",
}

func historyText(userID int64, recs []audit.Record) string {
	if len(recs) == 0 {
		return fmt.Sprintf("No hay decisiones registradas para %d.", userID)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Últimas decisiones para %d:\n\n", userID))
	for _, r := range recs {
		label, ok := outcomeLabels[r.Outcome]
		if !ok {
			label = r.Outcome
		}
		sb.WriteString(fmt.Sprintf("• %s %s", r.CreatedAt.Format("2006-01-02 15:04"), label))
		if r.Signal != "" {
			sb.WriteString(" por " + r.Signal)
		}
		if r.RosterRow > 0 {
			sb.WriteString(fmt.Sprintf(" (fila %d)", r.RosterRow))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
