package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
)

// Searcher is satisfied by *roster.Matcher.
type Searcher interface {
	Has(snapshot roster.Snapshot) bool
	MatchAny(ctx context.Context, snapshot roster.Snapshot, signals []roster.Signal) (roster.Outcome, error)
}

// Lookup searches every priority column for query and renders the result
// for admins. Former members are looked up in the previous snapshot when the
// current one has nothing.
func Lookup(ctx context.Context, s Searcher, query string) (string, error) {
	signals := roster.SignalsFromText(query)
	out, err := s.MatchAny(ctx, roster.Current, signals)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if out.Kind == roster.NoMatch && s.Has(roster.Previous) {
		out, err = s.MatchAny(ctx, roster.Previous, signals)
		if err != nil {
			return "", err
		}
		if out.Kind != roster.NoMatch {
			sb.WriteString("No he podido encontrar tu búsqueda en la base de datos de socios actual, " +
				"pero sí en la del año pasado.\n\n")
		}
	}

	switch out.Kind {
	case roster.NoMatch:
		sb.WriteString(fmt.Sprintf("Lo siento, no he podido encontrar «%s» en la base de datos de socios.", query))
	case roster.AmbiguousMatch:
		sb.WriteString("He encontrado varias personas socias que coinciden con tu búsqueda:\n\n")
		for _, e := range out.Entries {
			sb.WriteString("• " + e.Name + "\n")
		}
	default:
		sb.WriteString("He encontrado esa información en la ficha de este/a socio/a:\n\n")
		sb.WriteString(roster.Card(out.Entry()))
	}
	return sb.String(), nil
}
