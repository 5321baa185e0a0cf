package verify

import (
	"fmt"
	"strings"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
)

// nameFinding is what the informational name lookup found. It never decides.
type nameFinding int

const (
	nameNotSearched nameFinding = iota // no family name to search with
	nameFound
	nameNotFound
)

const (
	textDNIFormat = "Por favor, escribe únicamente tu DNI sin guiones ni espacios."

	textRosterUnavailable = "Ahora mismo no puedo consultar la lista de socios. " +
		"Por favor, vuelve a enviarme tu DNI dentro de unos minutos."

	textDNIRejected = "Lo siento, pero tu DNI no aparece en nuestra lista de socios activos, " +
		"así que no puedo dejarte acceder...\n\n" +
		"Si realmente eres socio/a, esto puede deberse a que aún no se haya confirmado " +
		"la recepción de la cuota de inscripción/renovación.\n\n" +
		"Si has escrito mal tu DNI, puedes volver a solicitar unirte al grupo y volveré " +
		"a ponerme en contacto contigo."

	textRequesterNotNotified = "\n\n(No he podido avisar a la persona por privado.)"
)

func greeting(community, chatTitle string) string {
	return fmt.Sprintf("¡Hola! Has solicitado unirte al grupo «%s».\n"+
		"Se trata de un chat de uso exclusivo para soci@s de %s.\n\n", chatTitle, community)
}

func welcomeByUsername(community string, req JoinRequest) string {
	return greeting(community, req.ChatTitle) + fmt.Sprintf(
		"He encontrado tu usuario @%s en la base de datos de socios activos. Puedes entrar. 😊",
		req.Username)
}

func dniPrompt(community string, req JoinRequest, finding nameFinding) string {
	var sb strings.Builder
	sb.WriteString(greeting(community, req.ChatTitle))
	if req.Username != "" {
		sb.WriteString(fmt.Sprintf("No tenemos asociado tu usuario @%s a ningún/a socio/a. ", req.Username))
	} else {
		sb.WriteString("Pareces no tener nombre de usuario de Telegram. ")
	}
	switch finding {
	case nameFound:
		sb.WriteString(fmt.Sprintf("Parece que tu nombre y apellidos (%s) sí están en nuestra "+
			"base de datos de socios activos.\n\n", req.DisplayName()))
	case nameNotFound:
		sb.WriteString("Tu nombre y apellidos tampoco aparecen en nuestra base de datos de socios activos.\n\n")
	default:
		sb.WriteString("Y tu nombre a secas no me da suficiente información para buscarte " +
			"en la base de datos de socios.\n\n")
	}
	sb.WriteString("¿Me podrías facilitar tu DNI (sin guiones ni espacios) para comprobar que eres socio/a?")
	return sb.String()
}

func welcomeByDNI(dni string, e roster.Entry) string {
	return fmt.Sprintf("¡Bien! Tu DNI %s aparece asociado a %s en nuestra lista de socios activos.\n\n"+
		"Ya tienes acceso al grupo. 😁", dni, e.Name)
}

func sessionExpired(chatTitle string) string {
	return fmt.Sprintf("Tu solicitud para unirte a «%s» ha caducado sin recibir tu DNI. "+
		"Si quieres entrar, vuelve a solicitarlo y te escribiré de nuevo.", chatTitle)
}

func person(name, username string) string {
	if username == "" {
		return name
	}
	return fmt.Sprintf("%s (@%s)", name, username)
}

func adminJoinNotice(req JoinRequest) string {
	return fmt.Sprintf("🆕 %s ha solicitado entrar al grupo «%s».",
		person(req.DisplayName(), req.Username), req.ChatTitle)
}

// adminNameCheck surfaces the informational name lookup to admins.
func adminNameCheck(req JoinRequest, finding nameFinding, match roster.Outcome) string {
	switch finding {
	case nameFound:
		e := match.Entry()
		return fmt.Sprintf("ℹ️ Su nombre y apellidos coinciden con «%s» (fila %d), "+
			"pero eso no basta para darle acceso.", e.Name, e.Row)
	case nameNotFound:
		return fmt.Sprintf("ℹ️ Su nombre y apellidos (%s) no aparecen en la base de datos.", req.DisplayName())
	default:
		return "ℹ️ No tiene apellidos en Telegram para buscarle por nombre."
	}
}

func adminAwaitingDNI(req JoinRequest, finding nameFinding, match roster.Outcome) string {
	return adminJoinNotice(req) + "\n" + adminNameCheck(req, finding, match) +
		"\nLe he pedido su DNI por privado."
}

func adminApprovedByUsername(req JoinRequest, e roster.Entry) string {
	return adminJoinNotice(req) + "\n\n" +
		"✅ Se le ha dado acceso debido a que su usuario está en la base de datos de socios activos.\n\n" +
		roster.Card(e)
}

func adminApprovedByDNI(e roster.Entry) string {
	return "✅ Se le ha dado acceso ya que el DNI introducido está en la base de datos de socios activos.\n\n" +
		roster.Card(e)
}

func adminDenied(dni string) string {
	return fmt.Sprintf("⛔️ Denegado.\nHa introducido un DNI %s que no se ha encontrado "+
		"en la base de datos de socios activos.", dni)
}

func adminUndeliverable(name, username, chatTitle string) string {
	return fmt.Sprintf("⚠️ %s ha solicitado acceso al grupo «%s» pero tiene bloqueado al bot. "+
		"Se requiere intervención humana.", person(name, username), chatTitle)
}

func adminAborted(name, username, chatTitle, reason string) string {
	return fmt.Sprintf("⚠️ No he podido completar la verificación de %s para «%s»: %s. "+
		"La solicitud sigue pendiente; se requiere intervención humana.",
		person(name, username), chatTitle, reason)
}

func adminOtherChatPending(req JoinRequest, pendingTitle string) string {
	return fmt.Sprintf("⏸️ %s ha solicitado entrar al grupo «%s» mientras verifica su acceso a «%s». "+
		"Esta solicitud queda pendiente; se requiere intervención humana.",
		person(req.DisplayName(), req.Username), req.ChatTitle, pendingTitle)
}

const adminExpired = "⌛ La solicitud ha caducado sin que la persona enviara su DNI. " +
	"Sigue pendiente en el grupo."
