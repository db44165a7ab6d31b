package points

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spritzapp/spritz/internal/config"
	"github.com/spritzapp/spritz/internal/db"
	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/internal/wallet"
)

// Reasons recorded in the points ledger.
const (
	ReasonDailyBonus     = "daily_bonus"
	ReasonInviteRedeemed = "invite_redeemed"
)

// Service is the points ledger: idempotent one-time awards, the daily
// bonus, lifetime stat counters, and read-side history/leaderboard.
type Service interface {
	AwardPoints(address string, points int64, reason, claimKey string) (AwardResult, error)
	ClaimDailyPoints(address string) (DailyClaimResult, error)
	IncrementStat(address string, stat Stat, delta int64) error
	GetPointsHistory(address string) ([]db.PointsHistory, error)
	GetLeaderboard(limit int) ([]db.LeaderboardEntry, error)
}

type AwardResult struct {
	Success        bool  `json:"success"`
	AlreadyClaimed bool  `json:"alreadyClaimed,omitempty"`
	Points         int64 `json:"points,omitempty"`
}

type DailyClaimResult struct {
	Success       bool      `json:"success"`
	PointsAwarded int64     `json:"points_awarded,omitempty"`
	NextClaimAt   time.Time `json:"next_claim_at"`
	Error         string    `json:"error,omitempty"`
}

// ServiceImpl implements Service over Postgres. The clock is injected so
// the UTC day boundary is testable.
type ServiceImpl struct {
	db         *sql.DB
	dailyBonus int64
	now        func() time.Time
}

func NewService(conn *sql.DB, rewards config.RewardsConfig) *ServiceImpl {
	return &ServiceImpl{
		db:         conn,
		dailyBonus: rewards.DailyBonusPoints,
		now:        time.Now,
	}
}

// AwardPoints appends a ledger entry and adds points to the user's balance
// in one transaction. When claimKey is set and an entry with that
// (address, claimKey) pair already exists, nothing is written and the
// result reports AlreadyClaimed; a retry or duplicate click never
// double-awards.
func (s *ServiceImpl) AwardPoints(address string, points int64, reason, claimKey string) (AwardResult, error) {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return AwardResult{}, err
	}
	if reason == "" {
		return AwardResult{}, &errors.ValidationError{Field: "reason", Message: "reason is required"}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return AwardResult{}, &errors.DatabaseError{Operation: "begin award transaction", Err: err}
	}
	defer tx.Rollback()

	if claimKey != "" {
		res, err := tx.Exec(`
			INSERT INTO points_history (user_address, points, reason, claim_key)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_address, claim_key) WHERE claim_key IS NOT NULL DO NOTHING`,
			addr, points, reason, claimKey)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return AwardResult{}, &errors.NotFoundError{Resource: "user", Identifier: addr}
			}
			return AwardResult{}, &errors.DatabaseError{Operation: "insert claim entry", Err: err}
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return AwardResult{}, &errors.DatabaseError{Operation: "check claim insert", Err: err}
		}
		if rows == 0 {
			// The claim key is already recorded; treat the award as applied.
			return AwardResult{Success: false, AlreadyClaimed: true}, nil
		}
	} else {
		_, err := tx.Exec(`
			INSERT INTO points_history (user_address, points, reason)
			VALUES ($1, $2, $3)`,
			addr, points, reason)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return AwardResult{}, &errors.NotFoundError{Resource: "user", Identifier: addr}
			}
			return AwardResult{}, &errors.DatabaseError{Operation: "insert history entry", Err: err}
		}
	}

	res, err := tx.Exec(`UPDATE users SET points = points + $2, updated_at = NOW() WHERE address = $1`, addr, points)
	if err != nil {
		return AwardResult{}, &errors.DatabaseError{Operation: "update user points", Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return AwardResult{}, &errors.DatabaseError{Operation: "check points update", Err: err}
	}
	if rows == 0 {
		return AwardResult{}, &errors.NotFoundError{Resource: "user", Identifier: addr}
	}

	if err := tx.Commit(); err != nil {
		return AwardResult{}, &errors.DatabaseError{Operation: "commit award transaction", Err: err}
	}

	return AwardResult{Success: true, Points: points}, nil
}

// ClaimDailyPoints grants the daily bonus at most once per UTC calendar
// day. The guard is the conditional update on daily_points_claimed_at, so
// two concurrent claims in the same day cannot both pass.
func (s *ServiceImpl) ClaimDailyPoints(address string) (DailyClaimResult, error) {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return DailyClaimResult{}, err
	}

	now := s.now().UTC()
	today := now.Format("2006-01-02")
	nextClaim := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	tx, err := s.db.Begin()
	if err != nil {
		return DailyClaimResult{}, &errors.DatabaseError{Operation: "begin daily claim transaction", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE users
		SET points = points + $2, daily_points_claimed_at = $3, updated_at = NOW()
		WHERE address = $1
		  AND (daily_points_claimed_at IS NULL OR daily_points_claimed_at <> $3)`,
		addr, s.dailyBonus, today)
	if err != nil {
		return DailyClaimResult{}, &errors.DatabaseError{Operation: "claim daily bonus", Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return DailyClaimResult{}, &errors.DatabaseError{Operation: "check daily claim", Err: err}
	}
	if rows == 0 {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE address = $1)`, addr).Scan(&exists); err != nil {
			return DailyClaimResult{}, &errors.DatabaseError{Operation: "check user exists", Err: err}
		}
		if !exists {
			return DailyClaimResult{}, &errors.NotFoundError{Resource: "user", Identifier: addr}
		}
		return DailyClaimResult{
			Success:     false,
			Error:       "daily bonus already claimed",
			NextClaimAt: nextClaim,
		}, nil
	}

	_, err = tx.Exec(`
		INSERT INTO points_history (user_address, points, reason)
		VALUES ($1, $2, $3)`,
		addr, s.dailyBonus, ReasonDailyBonus)
	if err != nil {
		return DailyClaimResult{}, &errors.DatabaseError{Operation: "record daily bonus", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return DailyClaimResult{}, &errors.DatabaseError{Operation: "commit daily claim transaction", Err: err}
	}

	return DailyClaimResult{
		Success:       true,
		PointsAwarded: s.dailyBonus,
		NextClaimAt:   nextClaim,
	}, nil
}

// IncrementStat atomically adds delta to one of the lifetime counters.
// These are not claims; callers invoke it once per real event.
func (s *ServiceImpl) IncrementStat(address string, stat Stat, delta int64) error {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return err
	}
	column, ok := stat.Column()
	if !ok {
		return &errors.ValidationError{Field: "stat", Message: fmt.Sprintf("unknown stat %d", int(stat))}
	}

	query := fmt.Sprintf(`UPDATE users SET %s = %s + $2, updated_at = NOW() WHERE address = $1`, column, column)
	res, err := s.db.Exec(query, addr, delta)
	if err != nil {
		return &errors.DatabaseError{Operation: "increment " + column, Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return &errors.DatabaseError{Operation: "check stat increment", Err: err}
	}
	if rows == 0 {
		return &errors.NotFoundError{Resource: "user", Identifier: addr}
	}
	return nil
}

// GetPointsHistory returns the ledger entries for a user, newest first.
func (s *ServiceImpl) GetPointsHistory(address string) ([]db.PointsHistory, error) {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT id, user_address, points, reason, claim_key, created_at
		FROM points_history
		WHERE user_address = $1
		ORDER BY created_at DESC`, addr)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get points history", Err: err}
	}
	defer rows.Close()

	var history []db.PointsHistory
	for rows.Next() {
		var ph db.PointsHistory
		if err := rows.Scan(&ph.ID, &ph.Address, &ph.Points, &ph.Reason, &ph.ClaimKey, &ph.CreatedAt); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan points history", Err: err}
		}
		history = append(history, ph)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate points history", Err: err}
	}

	return history, nil
}

// GetLeaderboard returns the top users by points. Ties break by address so
// the ordering is deterministic.
func (s *ServiceImpl) GetLeaderboard(limit int) ([]db.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT address, username, points
		FROM users
		WHERE is_banned = FALSE
		ORDER BY points DESC, address ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get leaderboard", Err: err}
	}
	defer rows.Close()

	leaderboard := []db.LeaderboardEntry{}
	for rows.Next() {
		var entry db.LeaderboardEntry
		if err := rows.Scan(&entry.Address, &entry.Username, &entry.Points); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan leaderboard entry", Err: err}
		}
		leaderboard = append(leaderboard, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate leaderboard", Err: err}
	}

	return leaderboard, nil
}
