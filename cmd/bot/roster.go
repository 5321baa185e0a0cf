package main

import (
	"context"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/config"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/infra/sheets"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/infra/xlsx"
)

func openRoster(ctx context.Context, c config.Config, opts ...roster.StoreOption) (*roster.Matcher, error) {
	schema, err := c.Schema()
	if err != nil {
		return nil, err
	}

	var src roster.Source
	switch c.Roster.Source {
	case config.SourceXLSX:
		src = xlsx.NewSource(map[roster.Snapshot]xlsx.Workbook{
			roster.Current:  {Path: c.Roster.Current.Path, Sheet: c.Roster.Current.Sheet},
			roster.Previous: {Path: c.Roster.Previous.Path, Sheet: c.Roster.Previous.Sheet},
		})
	default:
		s, err := sheets.NewSource(ctx,
			sheets.Credentials{File: c.Roster.CredentialsFile, JSON: c.Roster.CredentialsJSON},
			map[roster.Snapshot]sheets.Spreadsheet{
				roster.Current:  {ID: c.Roster.Current.Spreadsheet, Range: c.Roster.Current.Range},
				roster.Previous: {ID: c.Roster.Previous.Spreadsheet, Range: c.Roster.Previous.Range},
			})
		if err != nil {
			return nil, err
		}
		src = s
	}

	store, err := roster.NewStore(src, schema, opts...)
	if err != nil {
		return nil, err
	}
	return roster.NewMatcher(store), nil
}
