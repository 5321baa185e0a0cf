package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsernameEquals(t *testing.T) {
	cases := []struct {
		name   string
		query  string
		stored string
		want   bool
	}{
		{"plain handle", "ana_g", "ana_g", true},
		{"case insensitive", "Ana_G", "ANA_g", true},
		{"leading at on stored value", "ana_g", "@ana_g", true},
		{"leading at on query", "@ana_g", "ana_g", true},
		{"link prefix", "ana_g", "https://t.me/ana_g", true},
		{"short link prefix", "ana_g", "t.me/ana_g", true},
		{"trailing spaces", "ana_g", "@ana_g   ", true},
		{"substring is not enough", "ana", "ana_g", false},
		{"longer query", "ana_gg", "ana_g", false},
		{"prefix with spaces", "ana_g", "mi usuario/ana_g", false},
		{"leading space on stored value", "ana_g", " ana_g", false},
		{"empty query", "", "", false},
		{"empty cell", "ana_g", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, UsernameEquals(tc.query)(tc.stored))
		})
	}
}

func TestNameStartsWith(t *testing.T) {
	cases := []struct {
		name   string
		query  string
		stored string
		want   bool
	}{
		{"first name only", "Ana", "Ana García", true},
		{"full value", "Ana García", "ana garcía", true},
		{"word boundary required", "Ana", "Anabel Gómez", false},
		{"chris is not christopher", "Chris", "Christopher Lee", false},
		{"must be at the start", "García", "Ana García", false},
		{"accented case folding", "ÁNGELA", "ángela ruiz", true},
		{"empty query", "  ", "Ana García", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NameStartsWith(tc.query)(tc.stored))
		})
	}
}

func TestNameContainsToken(t *testing.T) {
	cases := []struct {
		name   string
		query  string
		stored string
		want   bool
	}{
		{"surname in the middle", "García", "Ana García López", true},
		{"surname at the end", "lópez", "Ana García López", true},
		{"first token", "ana", "Ana García", true},
		{"partial token", "Garc", "Ana García", false},
		{"token inside a longer word", "ana", "Mariana Ruiz", false},
		{"second occurrence is bounded", "ana", "Mariana Ana", true},
		{"multi token query", "García López", "Ana García López", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NameContainsToken(tc.query)(tc.stored))
		})
	}
}

func TestExact(t *testing.T) {
	assert.True(t, Exact("12345678a")("12345678A"))
	assert.True(t, Exact("ana@uni.es")(" ANA@uni.es "))
	assert.False(t, Exact("1234567")("12345678A"))
	assert.False(t, Exact("")(""))
}
