package invite

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/spritzapp/spritz/internal/config"
	"github.com/spritzapp/spritz/internal/db"
	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/internal/points"
	"github.com/spritzapp/spritz/internal/wallet"
)

// Codes avoid 0/O/1/I so they survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const codeLength = 8

// maxCodeAttempts bounds the retry loop on random-code collisions.
const maxCodeAttempts = 5

// Service is the invite graph: user-issued single-use codes, the legacy
// admin pool, and code generation against each owner's capacity.
type Service interface {
	RedeemUserInvite(code, redeemer string) (RedeemResult, error)
	RedeemAdminInvite(code, redeemer string) (RedeemResult, error)
	RedeemAny(code, redeemer string) (RedeemResult, error)
	EnsureInviteCodes(owner string) ([]string, error)
	ListInviteCodes(owner string) ([]db.InviteCode, error)
	CreateAdminInvite(code string, maxUses int, expiresAt *time.Time, createdBy string) (db.AdminInviteCode, error)
}

type RedeemResult struct {
	Success     bool   `json:"success"`
	AlreadyUsed bool   `json:"alreadyUsed,omitempty"`
	Inviter     string `json:"inviter,omitempty"`
}

type ServiceImpl struct {
	db             *sql.DB
	referralPoints int64
	inviteBonus    int
}

func NewService(conn *sql.DB, rewards config.RewardsConfig) *ServiceImpl {
	return &ServiceImpl{
		db:             conn,
		referralPoints: rewards.ReferralPoints,
		inviteBonus:    rewards.ReferralInviteBonus,
	}
}

// RedeemUserInvite claims a user-issued code for redeemer. The claim is a
// single conditional update on used_by IS NULL, so of two concurrent
// redeemers exactly one wins. On success the inviter's referral credit and
// invite capacity bump land in the same transaction.
func (s *ServiceImpl) RedeemUserInvite(code, redeemer string) (RedeemResult, error) {
	addr, err := wallet.Normalize(redeemer)
	if err != nil {
		return RedeemResult{}, err
	}
	if code == "" {
		return RedeemResult{}, &errors.ValidationError{Field: "code", Message: "invite code is required"}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return RedeemResult{}, &errors.DatabaseError{Operation: "begin redeem transaction", Err: err}
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRow(`
		UPDATE invite_codes
		SET used_by = $2, used_at = NOW()
		WHERE code = upper($1) AND used_by IS NULL
		RETURNING owner_address`,
		code, addr).Scan(&owner)
	if err == sql.ErrNoRows {
		var usedBy sql.NullString
		err := tx.QueryRow(`SELECT used_by FROM invite_codes WHERE code = upper($1)`, code).Scan(&usedBy)
		if err == sql.ErrNoRows {
			return RedeemResult{}, &errors.NotFoundError{Resource: "invite code", Identifier: code}
		}
		if err != nil {
			return RedeemResult{}, &errors.DatabaseError{Operation: "check invite code", Err: err}
		}
		return RedeemResult{Success: false, AlreadyUsed: true}, nil
	}
	if err != nil {
		return RedeemResult{}, &errors.DatabaseError{Operation: "claim invite code", Err: err}
	}

	if owner == addr {
		// Rolling back releases the claim.
		return RedeemResult{}, &errors.ValidationError{Field: "code", Message: "cannot redeem your own invite code"}
	}

	_, err = tx.Exec(`
		INSERT INTO points_history (user_address, points, reason)
		VALUES ($1, $2, $3)`,
		owner, s.referralPoints, points.ReasonInviteRedeemed)
	if err != nil {
		return RedeemResult{}, &errors.DatabaseError{Operation: "record referral credit", Err: err}
	}

	_, err = tx.Exec(`
		UPDATE users
		SET points = points + $2, invite_count = invite_count + $3, updated_at = NOW()
		WHERE address = $1`,
		owner, s.referralPoints, s.inviteBonus)
	if err != nil {
		return RedeemResult{}, &errors.DatabaseError{Operation: "credit inviter", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return RedeemResult{}, &errors.DatabaseError{Operation: "commit redeem transaction", Err: err}
	}

	return RedeemResult{Success: true, Inviter: owner}, nil
}

// RedeemAdminInvite claims a use of a legacy admin code. The increment is
// conditioned on active/unexpired/under-cap inside one statement, so two
// concurrent redemptions near the cap cannot both pass.
func (s *ServiceImpl) RedeemAdminInvite(code, redeemer string) (RedeemResult, error) {
	addr, err := wallet.Normalize(redeemer)
	if err != nil {
		return RedeemResult{}, err
	}
	if code == "" {
		return RedeemResult{}, &errors.ValidationError{Field: "code", Message: "invite code is required"}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return RedeemResult{}, &errors.DatabaseError{Operation: "begin admin redeem transaction", Err: err}
	}
	defer tx.Rollback()

	var claimed string
	err = tx.QueryRow(`
		UPDATE admin_invite_codes
		SET current_uses = current_uses + 1
		WHERE code = upper($1)
		  AND is_active
		  AND (expires_at IS NULL OR expires_at > NOW())
		  AND (max_uses = 0 OR current_uses < max_uses)
		RETURNING code`,
		code).Scan(&claimed)
	if err == sql.ErrNoRows {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM admin_invite_codes WHERE code = upper($1))`, code).Scan(&exists); err != nil {
			return RedeemResult{}, &errors.DatabaseError{Operation: "check admin code", Err: err}
		}
		if !exists {
			return RedeemResult{}, &errors.NotFoundError{Resource: "admin invite code", Identifier: code}
		}
		// Inactive, expired, or exhausted.
		return RedeemResult{Success: false, AlreadyUsed: true}, nil
	}
	if err != nil {
		return RedeemResult{}, &errors.DatabaseError{Operation: "claim admin code", Err: err}
	}

	_, err = tx.Exec(`
		INSERT INTO admin_invite_uses (id, code, used_by)
		VALUES ($1, $2, $3)`,
		uuid.New().String(), claimed, addr)
	if err != nil {
		return RedeemResult{}, &errors.DatabaseError{Operation: "record admin code use", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return RedeemResult{}, &errors.DatabaseError{Operation: "commit admin redeem transaction", Err: err}
	}

	return RedeemResult{Success: true}, nil
}

// RedeemAny tries the user-issued pool first and falls back to the admin
// pool only when the code is unknown there.
func (s *ServiceImpl) RedeemAny(code, redeemer string) (RedeemResult, error) {
	result, err := s.RedeemUserInvite(code, redeemer)
	if err != nil {
		if _, ok := err.(*errors.NotFoundError); ok {
			return s.RedeemAdminInvite(code, redeemer)
		}
		return RedeemResult{}, err
	}
	return result, nil
}

// EnsureInviteCodes tops up the owner's unused codes to their invite
// capacity and returns every outstanding unused code. Already-issued
// unused codes are never touched.
func (s *ServiceImpl) EnsureInviteCodes(owner string) ([]string, error) {
	addr, err := wallet.Normalize(owner)
	if err != nil {
		return nil, err
	}

	var capacity int
	err = s.db.QueryRow(`SELECT invite_count FROM users WHERE address = $1`, addr).Scan(&capacity)
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: "user", Identifier: addr}
	}
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "get invite capacity", Err: err}
	}

	var unused int
	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM invite_codes
		WHERE owner_address = $1 AND used_by IS NULL`, addr).Scan(&unused)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "count unused codes", Err: err}
	}

	for i := unused; i < capacity; i++ {
		if err := s.insertFreshCode(addr); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.Query(`
		SELECT code FROM invite_codes
		WHERE owner_address = $1 AND used_by IS NULL
		ORDER BY created_at ASC, code ASC`, addr)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "list unused codes", Err: err}
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan invite code", Err: err}
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate invite codes", Err: err}
	}

	return codes, nil
}

// insertFreshCode inserts one new random code, retrying on the unique
// constraint when a generated code collides.
func (s *ServiceImpl) insertFreshCode(owner string) error {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return err
		}

		res, err := s.db.Exec(`
			INSERT INTO invite_codes (code, owner_address)
			VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING`,
			code, owner)
		if err != nil {
			return &errors.DatabaseError{Operation: "insert invite code", Err: err}
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return &errors.DatabaseError{Operation: "check invite code insert", Err: err}
		}
		if rows == 1 {
			return nil
		}
	}
	return &errors.ConflictError{Resource: "invite code", Reason: "could not generate a unique code"}
}

// ListInviteCodes returns every code owned by the user, unused first.
func (s *ServiceImpl) ListInviteCodes(owner string) ([]db.InviteCode, error) {
	addr, err := wallet.Normalize(owner)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT code, owner_address, used_by, used_at, created_at
		FROM invite_codes
		WHERE owner_address = $1
		ORDER BY used_by NULLS FIRST, created_at ASC`, addr)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "list invite codes", Err: err}
	}
	defer rows.Close()

	var codes []db.InviteCode
	for rows.Next() {
		var ic db.InviteCode
		if err := rows.Scan(&ic.Code, &ic.OwnerAddress, &ic.UsedBy, &ic.UsedAt, &ic.CreatedAt); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan invite code", Err: err}
		}
		codes = append(codes, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate invite codes", Err: err}
	}

	return codes, nil
}

// CreateAdminInvite adds a code to the legacy admin pool. An empty code
// gets a generated one.
func (s *ServiceImpl) CreateAdminInvite(code string, maxUses int, expiresAt *time.Time, createdBy string) (db.AdminInviteCode, error) {
	creator, err := wallet.Normalize(createdBy)
	if err != nil {
		return db.AdminInviteCode{}, err
	}
	if maxUses < 0 {
		return db.AdminInviteCode{}, &errors.ValidationError{Field: "max_uses", Message: "must not be negative"}
	}
	if code == "" {
		code, err = generateCode()
		if err != nil {
			return db.AdminInviteCode{}, err
		}
	}

	var created db.AdminInviteCode
	err = s.db.QueryRow(`
		INSERT INTO admin_invite_codes (code, max_uses, expires_at, created_by)
		VALUES (upper($1), $2, $3, $4)
		RETURNING code, max_uses, current_uses, expires_at, is_active, created_by, created_at`,
		code, maxUses, expiresAt, creator).
		Scan(&created.Code, &created.MaxUses, &created.CurrentUses, &created.ExpiresAt,
			&created.IsActive, &created.CreatedBy, &created.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return db.AdminInviteCode{}, &errors.ConflictError{Resource: "admin invite code", Reason: "code already exists"}
		}
		return db.AdminInviteCode{}, &errors.DatabaseError{Operation: "create admin code", Err: err}
	}

	return created, nil
}

func generateCode() (string, error) {
	out := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate invite code: %w", err)
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}
