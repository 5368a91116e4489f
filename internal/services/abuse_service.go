package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/harborview/civicwatch/internal/models"
	"github.com/harborview/civicwatch/internal/store"
)

// Abuse scoring constants. Weights and thresholds are deliberately fixed;
// the score is recomputed from the window on every request, in this order.
const (
	suspicionWindow = time.Hour

	burstWindow    = 5 * time.Minute
	burstThreshold = 50
	burstWeight    = 30

	distinctAgentThreshold = 5
	distinctAgentWeight    = 20

	botAgentWeight = 15

	authFloodWindow    = 60 * time.Second
	authFloodThreshold = 10
	authFloodWeight    = 25

	shortAgentLength = 10
	shortAgentWeight = 10

	blockScoreThreshold = 50
	warnScoreThreshold  = 30
	blockDuration       = 24 * time.Hour
)

var botAgentMarkers = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python", "go-http-client", "java/", "scrapy", "httpclient",
}

var authPathPrefixes = []string{
	"/api/v1/auth/",
	"/auth/",
}

// AbuseEngine scores inbound traffic per origin over a rolling window and
// maintains the temporary block list. State lives in the injected tracker
// store; scoring is deterministic over the current window contents.
type AbuseEngine struct {
	store  store.TrackerStore
	events *SecurityEventService
	now    func() time.Time
}

// NewAbuseEngine creates a new AbuseEngine
func NewAbuseEngine(trackerStore store.TrackerStore, events *SecurityEventService) *AbuseEngine {
	return &AbuseEngine{
		store:  trackerStore,
		events: events,
		now:    time.Now,
	}
}

// SetClock overrides the engine's time source. Test hook.
func (e *AbuseEngine) SetClock(now func() time.Time) {
	e.now = now
}

// CheckBlocked rejects origins on the block list. Runs on every request
// before anything else; content is irrelevant while a block is active.
func (e *AbuseEngine) CheckBlocked(ctx context.Context, ipAddress string) error {
	entry, err := e.store.GetBlock(ctx, ipAddress)
	if err != nil {
		return err
	}
	if entry != nil {
		return models.ErrBlockedOrigin
	}
	return nil
}

// Observe records one request against its origin, recomputes the suspicion
// score over the rolling window, and enforces the thresholds. Returns
// ErrBlockedOrigin when the origin is, or just became, blocked.
func (e *AbuseEngine) Observe(ctx context.Context, ipAddress, path, userAgent string) error {
	if err := e.CheckBlocked(ctx, ipAddress); err != nil {
		return err
	}

	now := e.now()
	rec, err := e.store.UpdateSuspicion(ctx, ipAddress, suspicionWindow, func(rec *models.SuspicionRecord) {
		rec.IPAddress = ipAddress
		rec.Requests = append(rec.Requests, models.TrackedRequest{
			At:        now,
			Path:      path,
			UserAgent: userAgent,
		})
		pruneWindow(rec, now)
		rec.Score, rec.PatternTags = scoreWindow(rec.Requests, now)
	})
	if err != nil {
		return err
	}

	switch {
	case rec.Score >= blockScoreThreshold:
		if err := e.store.PutBlock(ctx, &models.BlockListEntry{
			IPAddress: ipAddress,
			Reason:    "suspicion score " + strconv.Itoa(rec.Score),
			BlockedAt: now,
			ExpiresAt: now.Add(blockDuration),
		}); err != nil {
			return err
		}

		_, _ = e.events.Record(ctx, models.EventOriginBlocked, nil, nil, ipAddress, userAgent, models.EventDetails{
			"score":        rec.Score,
			"pattern_tags": strings.Join(rec.PatternTags, ","),
			"block_hours":  int(blockDuration.Hours()),
		})
		return models.ErrBlockedOrigin

	case rec.Score >= warnScoreThreshold:
		_, _ = e.events.Record(ctx, models.EventSuspiciousActivity, nil, nil, ipAddress, userAgent, models.EventDetails{
			"score":        rec.Score,
			"pattern_tags": strings.Join(rec.PatternTags, ","),
		})
	}

	return nil
}

func pruneWindow(rec *models.SuspicionRecord, now time.Time) {
	cutoff := now.Add(-suspicionWindow)
	kept := rec.Requests[:0]
	for _, req := range rec.Requests {
		if req.At.After(cutoff) {
			kept = append(kept, req)
		}
	}
	rec.Requests = kept
}

// scoreWindow recomputes the suspicion score from the window contents alone.
// Signal order matters for auditability of the tags, not for the total.
func scoreWindow(requests []models.TrackedRequest, now time.Time) (int, []string) {
	score := 0
	var tags []string

	burstCutoff := now.Add(-burstWindow)
	authCutoff := now.Add(-authFloodWindow)

	burstCount := 0
	authCount := 0
	distinctAgents := make(map[string]struct{})
	sawBotAgent := false
	sawShortAgent := false

	for _, req := range requests {
		if req.At.After(burstCutoff) {
			burstCount++
		}
		if req.At.After(authCutoff) && isAuthPath(req.Path) {
			authCount++
		}
		distinctAgents[req.UserAgent] = struct{}{}
		if isBotAgent(req.UserAgent) {
			sawBotAgent = true
		}
		if len(req.UserAgent) < shortAgentLength {
			sawShortAgent = true
		}
	}

	if burstCount >= burstThreshold {
		score += burstWeight
		tags = append(tags, "high_frequency")
	}
	if len(distinctAgents) > distinctAgentThreshold {
		score += distinctAgentWeight
		tags = append(tags, "agent_rotation")
	}
	if sawBotAgent {
		score += botAgentWeight
		tags = append(tags, "bot_agent")
	}
	if authCount > authFloodThreshold {
		score += authFloodWeight
		tags = append(tags, "auth_flooding")
	}
	if sawShortAgent {
		score += shortAgentWeight
		tags = append(tags, "missing_agent")
	}

	return score, tags
}

func isAuthPath(path string) bool {
	for _, prefix := range authPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isBotAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range botAgentMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
