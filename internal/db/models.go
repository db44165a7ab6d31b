package db

import (
	"database/sql"
	"time"
)

// User is a row in the users table, keyed by the normalized wallet address.
// Users are never hard-deleted; bans are soft.
type User struct {
	Address             string
	WalletType          sql.NullString
	Chain               sql.NullString
	EnsName             sql.NullString
	Username            sql.NullString
	LoginCount          int
	LastLogin           time.Time
	LoginStreak         int
	LongestStreak       int
	IsBanned            bool
	BanReason           sql.NullString
	Points              int64
	InviteCount         int
	DailyPointsClaimedAt sql.NullString
	ReferredBy          sql.NullString
	MessagesSent        int64
	CallsMade           int64
	MinutesStreamed     int64
	FriendsCount        int64
	AgentsCreated       int64
	StreamsHosted       int64
	CreatedAt           time.Time
}

// InviteCode is a user-issued code. It transitions from unused to used
// exactly once; UsedBy is set by a conditional update.
type InviteCode struct {
	Code         string
	OwnerAddress string
	UsedBy       sql.NullString
	UsedAt       sql.NullTime
	CreatedAt    time.Time
}

// AdminInviteCode is the legacy multi-use pool. current_uses never exceeds
// max_uses when max_uses is positive; zero means unlimited.
type AdminInviteCode struct {
	Code        string
	MaxUses     int
	CurrentUses int
	ExpiresAt   sql.NullTime
	IsActive    bool
	CreatedBy   string
	CreatedAt   time.Time
}

// PointsHistory is an immutable append-only ledger entry. ClaimKey, when
// set, is unique per user and enforces at-most-once awards.
type PointsHistory struct {
	ID        int64
	Address   string
	Points    int64
	Reason    string
	ClaimKey  sql.NullString
	CreatedAt time.Time
}

type LeaderboardEntry struct {
	Address  string
	Username sql.NullString
	Points   int64
}
