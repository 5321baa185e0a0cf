package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedField = errors.New("field cannot be searched")

type OutcomeKind int

const (
	NoMatch OutcomeKind = iota
	SingleMatch
	AmbiguousMatch
)

func (k OutcomeKind) String() string {
	switch k {
	case SingleMatch:
		return "single"
	case AmbiguousMatch:
		return "ambiguous"
	default:
		return "none"
	}
}

// Outcome is the result of a lookup. Field is the column that produced it.
type Outcome struct {
	Kind    OutcomeKind
	Field   Field
	Entries []Entry
}

// Entry returns the matched record of a SingleMatch.
func (o Outcome) Entry() Entry {
	if len(o.Entries) == 0 {
		return Entry{}
	}
	return o.Entries[0]
}

// Matcher resolves identity signals against a Store.
type Matcher struct {
	store *Store
}

func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// Has reports whether the snapshot can be searched.
func (m *Matcher) Has(snapshot Snapshot) bool {
	return m.store.Has(snapshot)
}

func targeted(sig Signal) (Predicate, error) {
	switch sig.Field {
	case FieldUsername:
		return UsernameEquals(sig.Value), nil
	case FieldName:
		return NameStartsWith(sig.Value), nil
	case FieldDNI, FieldEmail, FieldPhone:
		return Exact(sig.Value), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedField, sig.Field)
}

// MatchColumn searches one column and never returns AmbiguousMatch: the first
// matching row wins.
func (m *Matcher) MatchColumn(ctx context.Context, snapshot Snapshot, sig Signal) (Outcome, error) {
	pred, err := targeted(sig)
	if err != nil {
		return Outcome{}, err
	}
	entries, err := m.store.FindEntries(ctx, snapshot, sig.Field, pred, 1)
	if err != nil {
		return Outcome{}, err
	}
	if len(entries) == 0 {
		return Outcome{Kind: NoMatch, Field: sig.Field}, nil
	}
	return Outcome{Kind: SingleMatch, Field: sig.Field, Entries: entries}, nil
}

// MatchAny walks Priority and stops at the first column with any result.
// Names are matched as tokens anywhere in the value, so several rows may
// come back as an AmbiguousMatch.
func (m *Matcher) MatchAny(ctx context.Context, snapshot Snapshot, signals []Signal) (Outcome, error) {
	for _, field := range Priority {
		for _, sig := range signals {
			if sig.Field != field || strings.TrimSpace(sig.Value) == "" {
				continue
			}
			if field != FieldName {
				out, err := m.MatchColumn(ctx, snapshot, sig)
				if err != nil {
					return Outcome{}, err
				}
				if out.Kind != NoMatch {
					return out, nil
				}
				continue
			}

			entries, err := m.store.FindEntries(ctx, snapshot, FieldName, NameContainsToken(sig.Value), 0)
			if err != nil {
				return Outcome{}, err
			}
			if len(entries) == 0 {
				continue
			}
			kind := SingleMatch
			if len(entries) > 1 {
				kind = AmbiguousMatch
			}
			return Outcome{Kind: kind, Field: FieldName, Entries: entries}, nil
		}
	}
	return Outcome{Kind: NoMatch}, nil
}
