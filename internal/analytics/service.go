package analytics

import (
	"database/sql"
	"time"

	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/internal/points"
	"github.com/spritzapp/spritz/pkg/logger"
)

const topN = 10

// Service computes read-only rollups for the admin dashboard and routes
// activity events to the stat counters.
type Service interface {
	ComputeAnalytics(period string) (Report, error)
	TrackEvent(event Event) error
}

type Report struct {
	Period     Period        `json:"period"`
	Summary    Summary       `json:"summary"`
	TimeSeries []BucketStats `json:"timeSeries"`
	TopUsers   []UserRank    `json:"topUsers"`
	TopAgents  []AgentRank   `json:"topAgents"`
}

type Summary struct {
	TotalUsers     int64 `json:"totalUsers"`
	NewUsers       int64 `json:"newUsers"`
	ActiveUsers    int64 `json:"activeUsers"`
	PointsAwarded  int64 `json:"pointsAwarded"`
	MessagesSent   int64 `json:"messagesSent"`
	StreamsStarted int64 `json:"streamsStarted"`
	RoomsCreated   int64 `json:"roomsCreated"`
	CallsScheduled int64 `json:"callsScheduled"`
	AgentsCreated  int64 `json:"agentsCreated"`
}

type BucketStats struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	NewUsers      int64     `json:"newUsers"`
	Messages      int64     `json:"messages"`
	PointsAwarded int64     `json:"pointsAwarded"`
}

type UserRank struct {
	Address      string `json:"address"`
	Username     string `json:"username,omitempty"`
	Points       int64  `json:"points"`
	MessagesSent int64  `json:"messagesSent"`
	FriendsCount int64  `json:"friendsCount"`
}

type AgentRank struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	OwnerAddress string `json:"ownerAddress"`
	MessageCount int64  `json:"messageCount"`
}

type ServiceImpl struct {
	db     *sql.DB
	points points.Service
	now    func() time.Time
}

func NewService(conn *sql.DB, pointsSvc points.Service) *ServiceImpl {
	return &ServiceImpl{
		db:     conn,
		points: pointsSvc,
		now:    time.Now,
	}
}

// TrackEvent routes one activity event to the counter it feeds.
func (s *ServiceImpl) TrackEvent(event Event) error {
	stat, ok := event.Type.Stat()
	if !ok {
		return &errors.ValidationError{Field: "type", Message: "unknown event type"}
	}
	delta := event.Delta
	if delta == 0 {
		delta = 1
	}
	return s.points.IncrementStat(event.Address, stat, delta)
}

// ComputeAnalytics builds the dashboard report for a period. It is a pure
// read: auxiliary activity tables that are empty or unreadable count as
// zero rather than failing the report.
func (s *ServiceImpl) ComputeAnalytics(periodStr string) (Report, error) {
	period := ParsePeriod(periodStr)
	now := s.now().UTC()
	start, interval := period.Window(now)
	buckets := MakeBuckets(start, now, interval)

	summary, err := s.computeSummary(start)
	if err != nil {
		return Report{}, err
	}

	series, err := s.computeTimeSeries(start, buckets)
	if err != nil {
		return Report{}, err
	}

	topUsers, err := s.topUsers()
	if err != nil {
		return Report{}, err
	}

	return Report{
		Period:     period,
		Summary:    summary,
		TimeSeries: series,
		TopUsers:   topUsers,
		TopAgents:  s.topAgents(),
	}, nil
}

func (s *ServiceImpl) computeSummary(start time.Time) (Summary, error) {
	var summary Summary

	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $1),
		       COUNT(*) FILTER (WHERE last_login >= $1)
		FROM users`, start).
		Scan(&summary.TotalUsers, &summary.NewUsers, &summary.ActiveUsers)
	if err != nil {
		return Summary{}, &errors.DatabaseError{Operation: "summarize users", Err: err}
	}

	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(points), 0)
		FROM points_history
		WHERE created_at >= $1 AND points > 0`, start).
		Scan(&summary.PointsAwarded)
	if err != nil {
		return Summary{}, &errors.DatabaseError{Operation: "summarize points", Err: err}
	}

	// Activity tables are auxiliary; a failed count is a zero, not an error.
	summary.MessagesSent = s.countSince("messages", start)
	summary.StreamsStarted = s.countSince("streams", start)
	summary.RoomsCreated = s.countSince("rooms", start)
	summary.CallsScheduled = s.countSince("scheduled_calls", start)
	summary.AgentsCreated = s.countSince("agents", start)

	return summary, nil
}

func (s *ServiceImpl) countSince(table string, start time.Time) int64 {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE created_at >= $1`, start).Scan(&count)
	if err != nil {
		logger.Warn("Failed to count %s, defaulting to 0: %v", table, err)
		return 0
	}
	return count
}

func (s *ServiceImpl) computeTimeSeries(start time.Time, buckets []Bucket) ([]BucketStats, error) {
	newUsers, err := s.timestampsSince(`SELECT created_at FROM users WHERE created_at >= $1`, start)
	if err != nil {
		return nil, err
	}
	userCounts := CountInBuckets(newUsers, buckets)

	pointsSamples, err := s.samplesSince(`
		SELECT created_at, points FROM points_history
		WHERE created_at >= $1 AND points > 0`, start)
	if err != nil {
		return nil, err
	}
	pointsSums := SumInBuckets(pointsSamples, buckets)

	messageTimes, err := s.timestampsSince(`SELECT created_at FROM messages WHERE created_at >= $1`, start)
	if err != nil {
		logger.Warn("Failed to read messages for time series, defaulting to 0: %v", err)
		messageTimes = nil
	}
	messageCounts := CountInBuckets(messageTimes, buckets)

	series := make([]BucketStats, len(buckets))
	for i, b := range buckets {
		series[i] = BucketStats{
			Start:         b.Start,
			End:           b.End,
			NewUsers:      userCounts[i],
			Messages:      messageCounts[i],
			PointsAwarded: pointsSums[i],
		}
	}
	return series, nil
}

func (s *ServiceImpl) timestampsSince(query string, start time.Time) ([]time.Time, error) {
	rows, err := s.db.Query(query, start)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "query time series", Err: err}
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan time series row", Err: err}
		}
		times = append(times, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate time series rows", Err: err}
	}
	return times, nil
}

func (s *ServiceImpl) samplesSince(query string, start time.Time) ([]Sample, error) {
	rows, err := s.db.Query(query, start)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "query samples", Err: err}
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sample Sample
		if err := rows.Scan(&sample.At, &sample.Value); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan sample row", Err: err}
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate sample rows", Err: err}
	}
	return samples, nil
}

func (s *ServiceImpl) topUsers() ([]UserRank, error) {
	rows, err := s.db.Query(`
		SELECT address, username, points, messages_sent, friends_count
		FROM users
		WHERE is_banned = FALSE
		ORDER BY points DESC, address ASC
		LIMIT $1`, topN)
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "rank users", Err: err}
	}
	defer rows.Close()

	ranks := []UserRank{}
	for rows.Next() {
		var rank UserRank
		var username sql.NullString
		if err := rows.Scan(&rank.Address, &username, &rank.Points, &rank.MessagesSent, &rank.FriendsCount); err != nil {
			return nil, &errors.DatabaseError{Operation: "scan user rank", Err: err}
		}
		rank.Username = username.String
		ranks = append(ranks, rank)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.DatabaseError{Operation: "iterate user ranks", Err: err}
	}
	return ranks, nil
}

func (s *ServiceImpl) topAgents() []AgentRank {
	rows, err := s.db.Query(`
		SELECT id, name, owner_address, message_count
		FROM agents
		ORDER BY message_count DESC, id ASC
		LIMIT $1`, topN)
	if err != nil {
		logger.Warn("Failed to rank agents, defaulting to empty: %v", err)
		return []AgentRank{}
	}
	defer rows.Close()

	ranks := []AgentRank{}
	for rows.Next() {
		var rank AgentRank
		if err := rows.Scan(&rank.ID, &rank.Name, &rank.OwnerAddress, &rank.MessageCount); err != nil {
			logger.Warn("Failed to scan agent rank: %v", err)
			return []AgentRank{}
		}
		ranks = append(ranks, rank)
	}
	if err := rows.Err(); err != nil {
		logger.Warn("Failed to iterate agent ranks: %v", err)
	}
	return ranks
}
