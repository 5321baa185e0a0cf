package roster

import (
	"errors"
	"fmt"
)

// Field is a logical column of the roster sheet.
type Field string

const (
	FieldName        Field = "name"
	FieldPhone       Field = "phone"
	FieldDNI         Field = "dni"
	FieldBirthDate   Field = "birthdate"
	FieldCycle       Field = "cycle"
	FieldInstitution Field = "institution"
	FieldEmail       Field = "email"
	FieldUsername    Field = "username"
)

// Fields lists every column of a record in display order.
var Fields = []Field{
	FieldName, FieldPhone, FieldDNI, FieldBirthDate,
	FieldCycle, FieldInstitution, FieldEmail, FieldUsername,
}

// Priority is the order MatchAny walks when no column is targeted.
var Priority = []Field{FieldName, FieldUsername, FieldDNI, FieldEmail, FieldPhone}

// Snapshot names one generation of the roster.
type Snapshot string

const (
	Current  Snapshot = "current"
	Previous Snapshot = "previous"
)

// Entry is one membership record. Row is the 1-based sheet row.
type Entry struct {
	Row         int
	Name        string
	Phone       string
	DNI         string
	BirthDate   string
	Cycle       string
	Institution string
	Email       string
	Username    string
}

// Value returns the entry value stored under f.
func (e Entry) Value(f Field) string {
	switch f {
	case FieldName:
		return e.Name
	case FieldPhone:
		return e.Phone
	case FieldDNI:
		return e.DNI
	case FieldBirthDate:
		return e.BirthDate
	case FieldCycle:
		return e.Cycle
	case FieldInstitution:
		return e.Institution
	case FieldEmail:
		return e.Email
	case FieldUsername:
		return e.Username
	}
	return ""
}

// Cell is a single matched value and the row it lives in.
type Cell struct {
	Row   int
	Value string
}

// Signal is one piece of identity evidence about a requester.
type Signal struct {
	Field Field
	Value string
}

// SignalsFromText turns free text into one signal per priority column,
// the way an admin lookup searches everything at once.
func SignalsFromText(text string) []Signal {
	out := make([]Signal, 0, len(Priority))
	for _, f := range Priority {
		out = append(out, Signal{Field: f, Value: text})
	}
	return out
}

// Schema maps logical fields to 1-based sheet columns.
type Schema struct {
	Columns    map[Field]int
	HeaderRows int
}

// DefaultSchema is the layout of the membership sheet.
func DefaultSchema() Schema {
	return Schema{
		Columns: map[Field]int{
			FieldName:        1,
			FieldPhone:       2,
			FieldDNI:         3,
			FieldBirthDate:   4,
			FieldCycle:       5,
			FieldInstitution: 6,
			FieldEmail:       11,
			FieldUsername:    12,
		},
		HeaderRows: 1,
	}
}

func (s Schema) Validate() error {
	if s.HeaderRows < 0 {
		return errors.New("roster schema: header_rows must not be negative")
	}
	seen := make(map[int]Field, len(s.Columns))
	for _, f := range Fields {
		col, ok := s.Columns[f]
		if !ok {
			return fmt.Errorf("roster schema: column for %q is missing", f)
		}
		if col <= 0 {
			return fmt.Errorf("roster schema: column for %q must be positive, got %d", f, col)
		}
		if other, dup := seen[col]; dup {
			return fmt.Errorf("roster schema: %q and %q share column %d", other, f, col)
		}
		seen[col] = f
	}
	return nil
}

func (s Schema) value(values []string, f Field) string {
	col := s.Columns[f]
	if col <= 0 || col > len(values) {
		return ""
	}
	return values[col-1]
}

func (s Schema) entry(row int, values []string) Entry {
	return Entry{
		Row:         row,
		Name:        s.value(values, FieldName),
		Phone:       s.value(values, FieldPhone),
		DNI:         s.value(values, FieldDNI),
		BirthDate:   s.value(values, FieldBirthDate),
		Cycle:       s.value(values, FieldCycle),
		Institution: s.value(values, FieldInstitution),
		Email:       s.value(values, FieldEmail),
		Username:    s.value(values, FieldUsername),
	}
}
