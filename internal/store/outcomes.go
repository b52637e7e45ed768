package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/minigame-engine/internal/outcome"
	"github.com/MJE43/minigame-engine/internal/session"
)

var _ session.Observer = (*Store)(nil)

// OutcomesQuery filters the outcome history.
type OutcomesQuery struct {
	Game    string `json:"game,omitempty"`
	Player  string `json:"player,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// OutcomesPage is one page of resolved outcomes, newest first.
type OutcomesPage struct {
	Outcomes   []outcome.Outcome `json:"outcomes"`
	TotalCount int               `json:"totalCount"`
	Page       int               `json:"page"`
	PerPage    int               `json:"perPage"`
	TotalPages int               `json:"totalPages"`
}

// OutcomeResolved persists o. Outcomes are keyed by wager id; a repeat is ignored.
func (s *Store) OutcomeResolved(o outcome.Outcome) {
	if err := s.SaveOutcome(context.Background(), o); err != nil {
		s.logger.Printf("outcome_save_failed wager=%s game=%s err=%v", o.WagerID, o.Game, err)
	}
}

// SaveOutcome inserts o unless its wager id is already stored.
func (s *Store) SaveOutcome(ctx context.Context, o outcome.Outcome) error {
	detail := "{}"
	if len(o.Detail) > 0 {
		b, err := json.Marshal(o.Detail)
		if err != nil {
			return fmt.Errorf("encode detail: %w", err)
		}
		detail = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO outcomes (
			wager_id, game, round, player, selection_key, selection, stake,
			result, payout, multiplier, detail, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.WagerID.String(), o.Game, int64(o.Round), o.Player, o.SelectionKey, o.Selection, o.Stake,
		string(o.Result), o.Payout, o.Multiplier.String(), detail, o.ResolvedAt.UTC(),
	)
	return err
}

// ListOutcomes returns a page of outcomes matching q.
func (s *Store) ListOutcomes(ctx context.Context, q OutcomesQuery) (*OutcomesPage, error) {
	var (
		where []string
		args  []any
	)
	if q.Game != "" {
		where = append(where, "game = ?")
		args = append(args, q.Game)
	}
	if q.Player != "" {
		where = append(where, "player = ?")
		args = append(args, q.Player)
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outcomes "+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	if q.PerPage <= 0 {
		q.PerPage = 50
	}
	if q.PerPage > 500 {
		q.PerPage = 500
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	totalPages := (totalCount + q.PerPage - 1) / q.PerPage
	offset := (q.Page - 1) * q.PerPage

	mainQuery := `SELECT
		wager_id, game, round, player, selection_key, selection, stake,
		result, payout, multiplier, detail, resolved_at
		FROM outcomes ` + whereClause + `
		ORDER BY resolved_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	args = append(args, q.PerPage, offset)

	rows, err := s.db.QueryContext(ctx, mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	page := &OutcomesPage{
		Outcomes:   []outcome.Outcome{},
		TotalCount: totalCount,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: totalPages,
	}
	for rows.Next() {
		var (
			o          outcome.Outcome
			wagerID    string
			roundID    int64
			result     string
			multiplier string
			detail     string
		)
		err := rows.Scan(&wagerID, &o.Game, &roundID, &o.Player, &o.SelectionKey, &o.Selection, &o.Stake,
			&result, &o.Payout, &multiplier, &detail, &o.ResolvedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if o.WagerID, err = uuid.Parse(wagerID); err != nil {
			return nil, fmt.Errorf("bad wager id %q: %w", wagerID, err)
		}
		if o.Multiplier, err = decimal.NewFromString(multiplier); err != nil {
			return nil, fmt.Errorf("bad multiplier %q: %w", multiplier, err)
		}
		if detail != "" && detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &o.Detail); err != nil {
				return nil, fmt.Errorf("bad detail for %s: %w", wagerID, err)
			}
		}
		o.Round = uint64(roundID)
		o.Result = outcome.Result(result)
		page.Outcomes = append(page.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}
	return page, nil
}
