package roster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidate(t *testing.T) {
	require.NoError(t, DefaultSchema().Validate())

	s := DefaultSchema()
	s.Columns[FieldEmail] = s.Columns[FieldDNI]
	assert.ErrorContains(t, s.Validate(), "share column")

	s = DefaultSchema()
	delete(s.Columns, FieldUsername)
	assert.ErrorContains(t, s.Validate(), "missing")

	s = DefaultSchema()
	s.Columns[FieldPhone] = 0
	assert.ErrorContains(t, s.Validate(), "must be positive")
}

func TestStoreReadRow(t *testing.T) {
	src := &memSource{snapshots: map[Snapshot][][]string{
		Current: {header, {"Ana García", "600111222", "12345678A"}},
	}}
	store, err := NewStore(src, DefaultSchema())
	require.NoError(t, err)

	e, err := store.ReadRow(context.Background(), Current, 2)
	require.NoError(t, err)
	assert.Equal(t, Entry{Row: 2, Name: "Ana García", Phone: "600111222", DNI: "12345678A"}, e)

	_, err = store.ReadRow(context.Background(), Current, 1)
	assert.ErrorIs(t, err, ErrRowNotFound)
	_, err = store.ReadRow(context.Background(), Current, 3)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestStoreFindEntries(t *testing.T) {
	src := &memSource{snapshots: map[Snapshot][][]string{
		Current: {
			{"Ana García", "600111222", "12345678A"},
			{"Luis García", "600333444", "87654321B"},
			{"Marta Ruiz", "600555666", "22222222D"},
		},
	}}
	schema := DefaultSchema()
	schema.HeaderRows = 0
	store, err := NewStore(src, schema)
	require.NoError(t, err)

	all, err := store.FindEntries(context.Background(), Current, FieldName, NameContainsToken("García"), 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, Entry{Row: 1, Name: "Ana García", Phone: "600111222", DNI: "12345678A"}, all[0])
	assert.Equal(t, "87654321B", all[1].DNI)

	first, err := store.FindEntries(context.Background(), Current, FieldName, NameContainsToken("García"), 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].Row)

	none, err := store.FindEntries(context.Background(), Current, FieldDNI, Exact("00000000Z"), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Equal(t, 3, src.reads)
}

func TestStoreFindAndFindAll(t *testing.T) {
	src := &memSource{snapshots: map[Snapshot][][]string{
		Current: {header, {"Ana García", "", "12345678A"}, {"Luis García", "", "87654321B"}},
	}}
	store, err := NewStore(src, DefaultSchema())
	require.NoError(t, err)
	ctx := context.Background()

	cell, ok, err := store.Find(ctx, Current, FieldName, NameContainsToken("García"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Cell{Row: 2, Value: "Ana García"}, cell)

	_, ok, err = store.Find(ctx, Current, FieldDNI, Exact("00000000Z"))
	require.NoError(t, err)
	assert.False(t, ok)

	cells, err := store.FindAll(ctx, Current, FieldName, NameContainsToken("García"))
	require.NoError(t, err)
	assert.Equal(t, []Cell{{Row: 2, Value: "Ana García"}, {Row: 3, Value: "Luis García"}}, cells)
}

func TestNewStoreRequiresSource(t *testing.T) {
	_, err := NewStore(nil, DefaultSchema())
	assert.Error(t, err)
}

func TestCardSkipsEmptyFields(t *testing.T) {
	card := Card(Entry{Name: "Ana García", DNI: "12345678A", Username: " "})
	assert.Contains(t, card, "Nombre: Ana García\n")
	assert.Contains(t, card, "DNI: 12345678A\n")
	assert.NotContains(t, card, "Usuario")
	assert.NotContains(t, card, "Teléfono")
}
