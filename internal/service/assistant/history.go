package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"voxassist/internal/models"

	"github.com/go-playground/validator/v10"
)

// ErrHistoryValidation marks a history append rejected by field-level
// validation. Distinct from oracle/transport failures so callers can
// attribute it to the request.
var ErrHistoryValidation = errors.New("history validation failed")

// AppendHistory appends turns to the user's conversation log in order,
// in one transaction. Each turn is validated before anything is written.
func (s *Service) AppendHistory(ctx context.Context, userID int64, turns []models.Turn) error {
	if userID <= 0 {
		return errors.New("invalid user id")
	}
	if len(turns) == 0 {
		return nil
	}
	for _, turn := range turns {
		if err := s.validate.Struct(turn); err != nil {
			var vErrs validator.ValidationErrors
			if errors.As(err, &vErrs) {
				return fmt.Errorf("%w: %v", ErrHistoryValidation, vErrs)
			}
			return fmt.Errorf("validate turn: %w", err)
		}
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("verify user: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	now := time.Now().UTC()
	for _, turn := range turns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			userID, turn.Role, turn.Content, now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history append: %w", err)
	}
	return nil
}

// GetHistory returns the user's turns oldest first. Insertion order is
// chronological order, so the id sequence is the authority.
func (s *Service) GetHistory(ctx context.Context, userID int64) ([]models.Turn, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at FROM turns WHERE user_id = ? ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	turns := make([]models.Turn, 0)
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
