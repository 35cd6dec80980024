package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studymate/internal/models"

	"github.com/jackc/pgx/v5"
)

// StreakRepo records study activity. The chat core calls UpdateStreak once
// per sent message; the student gets credit for engaging, not for the
// quality of the answer.
type StreakRepo struct {
	db *DB

	// now is swappable for tests.
	now func() time.Time
}

func NewStreakRepo(db *DB) *StreakRepo {
	return &StreakRepo{db: db, now: time.Now}
}

func (r *StreakRepo) UpdateStreak(ctx context.Context, userID string) error {
	streak, err := r.GetStreak(ctx, userID)
	if err != nil {
		return err
	}
	updated := Advance(streak, r.now())
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO study_streaks (user_id, current_streak, longest_streak, last_activity_date)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id)
DO UPDATE SET
  current_streak = EXCLUDED.current_streak,
  longest_streak = EXCLUDED.longest_streak,
  last_activity_date = EXCLUDED.last_activity_date,
  updated_at = NOW()`,
		updated.UserID, updated.CurrentStreak, updated.LongestStreak, updated.LastActivityDate,
	)
	if err != nil {
		return fmt.Errorf("upsert streak: %w", err)
	}
	return nil
}

func (r *StreakRepo) GetStreak(ctx context.Context, userID string) (models.StudyStreak, error) {
	var s models.StudyStreak
	err := r.db.Pool.QueryRow(ctx, `
SELECT user_id, current_streak, longest_streak, last_activity_date
FROM study_streaks
WHERE user_id=$1`, userID).
		Scan(&s.UserID, &s.CurrentStreak, &s.LongestStreak, &s.LastActivityDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StudyStreak{UserID: userID}, nil
	}
	if err != nil {
		return models.StudyStreak{}, fmt.Errorf("get streak: %w", err)
	}
	return s, nil
}

// Advance applies one activity event at now: same-day activity is a no-op,
// activity within two days extends the streak, a longer gap resets it to 1.
func Advance(s models.StudyStreak, now time.Time) models.StudyStreak {
	if s.LastActivityDate == nil {
		s.CurrentStreak = 1
		if s.LongestStreak < 1 {
			s.LongestStreak = 1
		}
	} else {
		days := now.Sub(*s.LastActivityDate).Hours() / 24
		switch {
		case days < 1:
			// Same day, streak unchanged.
		case days < 2:
			s.CurrentStreak++
			if s.CurrentStreak > s.LongestStreak {
				s.LongestStreak = s.CurrentStreak
			}
		default:
			s.CurrentStreak = 1
		}
	}
	t := now
	s.LastActivityDate = &t
	return s
}
