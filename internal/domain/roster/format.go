package roster

import (
	"fmt"
	"strings"
)

var fieldLabels = map[Field]string{
	FieldName:        "🧑 Nombre",
	FieldPhone:       "☎️ Teléfono",
	FieldDNI:         "🪪 DNI",
	FieldBirthDate:   "📅 Fecha nacimiento",
	FieldCycle:       "⚖️ Convocatoria",
	FieldInstitution: "📍 Institución",
	FieldEmail:       "📧 Email",
	FieldUsername:    "💬 Usuario",
}

// Card renders a record one field per line, skipping empty fields.
func Card(e Entry) string {
	var sb strings.Builder
	for _, f := range Fields {
		v := strings.TrimSpace(e.Value(f))
		if v == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", fieldLabels[f], v))
	}
	return sb.String()
}
