package account

import (
	"database/sql"
	"time"

	"github.com/spritzapp/spritz/internal/config"
	"github.com/spritzapp/spritz/internal/db"
	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/internal/invite"
	"github.com/spritzapp/spritz/internal/wallet"
	"github.com/spritzapp/spritz/pkg/logger"
)

// Service is the account ledger: login tracking, profile upserts, and ban
// state.
type Service interface {
	TrackLogin(params LoginParams) (LoginResult, error)
	GetUser(address string) (db.User, error)
	BanUser(address, reason string) error
	UnbanUser(address string) error
}

// LoginParams carries the optional profile fields a login may supply.
// Empty fields leave the stored values unchanged.
type LoginParams struct {
	Address    string `json:"address"`
	WalletType string `json:"walletType,omitempty"`
	Chain      string `json:"chain,omitempty"`
	EnsName    string `json:"ensName,omitempty"`
	Username   string `json:"username,omitempty"`
	InviteCode string `json:"inviteCode,omitempty"`
}

// LoginResult reports daily-bonus availability only; claiming is a
// separate explicit call.
type LoginResult struct {
	IsNewUser           bool   `json:"isNewUser"`
	IsBanned            bool   `json:"isBanned"`
	BanReason           string `json:"banReason,omitempty"`
	DailyBonusAvailable bool   `json:"dailyBonusAvailable"`
	LoginCount          int    `json:"loginCount"`
	LoginStreak         int    `json:"loginStreak"`
	Points              int64  `json:"points"`
}

type ServiceImpl struct {
	db             *sql.DB
	invites        invite.Service
	defaultChannel string
	now            func() time.Time
}

func NewService(conn *sql.DB, invites invite.Service, chat config.ChatConfig) *ServiceImpl {
	return &ServiceImpl{
		db:             conn,
		invites:        invites,
		defaultChannel: chat.DefaultChannelID,
		now:            time.Now,
	}
}

// TrackLogin creates or updates the user row for a login. The whole
// create-or-bump is one upsert: login_count increments, last_login moves,
// supplied profile fields overwrite, omitted ones are retained, and the
// login streak recomputes off the previous last_login's UTC day. A new
// user's invite code is redeemed through the invite graph, and both
// branches join the default broadcast channel best-effort.
func (s *ServiceImpl) TrackLogin(params LoginParams) (LoginResult, error) {
	addr, err := wallet.Normalize(params.Address)
	if err != nil {
		return LoginResult{}, err
	}

	var (
		loginCount  int
		loginStreak int
		isBanned    bool
		banReason   sql.NullString
		userPoints  int64
		claimedAt   sql.NullString
	)
	err = s.db.QueryRow(`
		INSERT INTO users (address, wallet_type, chain, ens_name, username, login_count, last_login)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), 1, NOW())
		ON CONFLICT (address) DO UPDATE SET
			login_count = users.login_count + 1,
			last_login = NOW(),
			wallet_type = COALESCE(NULLIF($2, ''), users.wallet_type),
			chain = COALESCE(NULLIF($3, ''), users.chain),
			ens_name = COALESCE(NULLIF($4, ''), users.ens_name),
			username = COALESCE(NULLIF($5, ''), users.username),
			login_streak = CASE
				WHEN (users.last_login AT TIME ZONE 'UTC')::date = (NOW() AT TIME ZONE 'UTC')::date THEN users.login_streak
				WHEN (users.last_login AT TIME ZONE 'UTC')::date = (NOW() AT TIME ZONE 'UTC')::date - 1 THEN users.login_streak + 1
				ELSE 1
			END,
			longest_streak = GREATEST(users.longest_streak, CASE
				WHEN (users.last_login AT TIME ZONE 'UTC')::date = (NOW() AT TIME ZONE 'UTC')::date THEN users.login_streak
				WHEN (users.last_login AT TIME ZONE 'UTC')::date = (NOW() AT TIME ZONE 'UTC')::date - 1 THEN users.login_streak + 1
				ELSE 1
			END),
			updated_at = NOW()
		RETURNING login_count, login_streak, is_banned, ban_reason, points, daily_points_claimed_at`,
		addr, params.WalletType, params.Chain, params.EnsName, params.Username).
		Scan(&loginCount, &loginStreak, &isBanned, &banReason, &userPoints, &claimedAt)
	if err != nil {
		return LoginResult{}, &errors.DatabaseError{Operation: "track login", Err: err}
	}

	isNewUser := loginCount == 1

	if isNewUser && params.InviteCode != "" {
		s.redeemSignupInvite(addr, params.InviteCode)
	}

	// Not essential to login success; a failed join is logged and swallowed.
	if _, err := s.db.Exec(`
		INSERT INTO channel_members (channel_id, user_address)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		s.defaultChannel, addr); err != nil {
		logger.Warn("Failed to join %s to default channel: %v", addr, err)
	}

	today := s.now().UTC().Format("2006-01-02")
	result := LoginResult{
		IsNewUser:           isNewUser,
		IsBanned:            isBanned,
		DailyBonusAvailable: !claimedAt.Valid || claimedAt.String != today,
		LoginCount:          loginCount,
		LoginStreak:         loginStreak,
		Points:              userPoints,
	}
	if banReason.Valid {
		result.BanReason = banReason.String
	}
	return result, nil
}

// redeemSignupInvite runs the invite redemption for a fresh signup and
// records the referrer. Redemption failure never fails the login.
func (s *ServiceImpl) redeemSignupInvite(addr, code string) {
	result, err := s.invites.RedeemAny(code, addr)
	if err != nil {
		logger.Warn("Invite code %q could not be redeemed for %s: %v", code, addr, err)
		return
	}
	if !result.Success {
		logger.Info("Invite code %q already used, no referrer recorded for %s", code, addr)
		return
	}
	if result.Inviter == "" {
		return
	}
	if _, err := s.db.Exec(`
		UPDATE users SET referred_by = $2, updated_at = NOW()
		WHERE address = $1 AND referred_by IS NULL`,
		addr, result.Inviter); err != nil {
		logger.Error("Failed to record referrer %s for %s: %v", result.Inviter, addr, err)
	}
}

// GetUser retrieves a user by wallet address.
func (s *ServiceImpl) GetUser(address string) (db.User, error) {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return db.User{}, err
	}

	var u db.User
	err = s.db.QueryRow(`
		SELECT address, wallet_type, chain, ens_name, username, login_count, last_login,
		       login_streak, longest_streak, is_banned, ban_reason, points, invite_count,
		       daily_points_claimed_at, referred_by, messages_sent, calls_made,
		       minutes_streamed, friends_count, agents_created, streams_hosted, created_at
		FROM users
		WHERE address = $1`, addr).
		Scan(&u.Address, &u.WalletType, &u.Chain, &u.EnsName, &u.Username, &u.LoginCount,
			&u.LastLogin, &u.LoginStreak, &u.LongestStreak, &u.IsBanned, &u.BanReason,
			&u.Points, &u.InviteCount, &u.DailyPointsClaimedAt, &u.ReferredBy,
			&u.MessagesSent, &u.CallsMade, &u.MinutesStreamed, &u.FriendsCount,
			&u.AgentsCreated, &u.StreamsHosted, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return db.User{}, &errors.NotFoundError{Resource: "user", Identifier: addr}
	}
	if err != nil {
		return db.User{}, &errors.DatabaseError{Operation: "get user", Err: err}
	}
	return u, nil
}

// BanUser soft-bans a user. The row survives; only the flag flips.
func (s *ServiceImpl) BanUser(address, reason string) error {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE users SET is_banned = TRUE, ban_reason = NULLIF($2, ''), updated_at = NOW()
		WHERE address = $1`, addr, reason)
	if err != nil {
		return &errors.DatabaseError{Operation: "ban user", Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return &errors.DatabaseError{Operation: "check ban", Err: err}
	}
	if rows == 0 {
		return &errors.NotFoundError{Resource: "user", Identifier: addr}
	}
	return nil
}

// UnbanUser lifts a ban and clears the reason.
func (s *ServiceImpl) UnbanUser(address string) error {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE users SET is_banned = FALSE, ban_reason = NULL, updated_at = NOW()
		WHERE address = $1`, addr)
	if err != nil {
		return &errors.DatabaseError{Operation: "unban user", Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return &errors.DatabaseError{Operation: "check unban", Err: err}
	}
	if rows == 0 {
		return &errors.NotFoundError{Resource: "user", Identifier: addr}
	}
	return nil
}
