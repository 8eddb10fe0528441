// Package waiver implements the waiver-wire claim processing engine: claim
// submission and cancellation, FAAB and priority resolution, atomic roster
// and budget execution, and the scheduled league runs that tie them together.
package waiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/idhash"
	"waiver-wire/internal/observability"
	"waiver-wire/internal/scheduler"
	"waiver-wire/internal/storage"
)

// Reporter consumes the result of a run. Failures are logged, never rolled back.
type Reporter interface {
	Report(ctx context.Context, run *domain.WaiverRun) error
}

// Options for creating a Service.
type Options struct {
	// Required stores
	Leagues storage.LeagueStore
	Teams   storage.TeamStore
	Roster  storage.RosterService
	Claims  storage.ClaimStore

	// Optional collaborators
	Reporter Reporter
	Clock    scheduler.Clock
	Logger   logrus.FieldLogger

	// Tuning
	InstanceID     string        // lease holder prefix, random if empty
	LeaseTTL       time.Duration // default 10m
	Workers        int           // concurrent league runs, default 4
	ExpiryGrace    time.Duration // extra time before a stale claim is expired, default 6h
	LeagueCacheTTL time.Duration // league lookups on submission, default 5m
}

// Service is the waiver engine's entry point.
type Service struct {
	leagues  storage.LeagueStore
	teams    storage.TeamStore
	roster   storage.RosterService
	claims   storage.ClaimStore
	reporter Reporter
	clock    scheduler.Clock
	log      logrus.FieldLogger

	validator *Validator
	executor  *Executor
	cache     *gocache.Cache

	instanceID  string
	leaseTTL    time.Duration
	workers     int
	expiryGrace time.Duration
}

// New creates a Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = scheduler.SystemClock{}
	}
	instanceID := opts.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	leaseTTL := opts.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	grace := opts.ExpiryGrace
	if grace < 0 {
		grace = 0
	} else if grace == 0 {
		grace = 6 * time.Hour
	}
	cacheTTL := opts.LeagueCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Service{
		leagues:     opts.Leagues,
		teams:       opts.Teams,
		roster:      opts.Roster,
		claims:      opts.Claims,
		reporter:    opts.Reporter,
		clock:       clock,
		log:         logger.WithField("component", "waiver"),
		validator:   NewValidator(opts.Roster, opts.Claims),
		executor:    NewExecutor(opts.Teams, opts.Roster, logger),
		cache:       gocache.New(cacheTTL, 2*cacheTTL),
		instanceID:  instanceID,
		leaseTTL:    leaseTTL,
		workers:     workers,
		expiryGrace: grace,
	}
}

// SubmitClaim validates req and persists a PENDING claim.
func (s *Service) SubmitClaim(ctx context.Context, req SubmitRequest) (*domain.Claim, error) {
	team, err := s.teams.GetByID(ctx, req.TeamID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, s.rejected(invalid(CodeTeamNotFound, "team %s does not exist", req.TeamID))
		}
		return nil, fmt.Errorf("load team: %w", err)
	}
	if req.LeagueID != "" && team.LeagueID != req.LeagueID {
		return nil, s.rejected(invalid(CodeTeamNotFound, "team %s is not in league %s", req.TeamID, req.LeagueID))
	}

	league, err := s.cachedLeague(ctx, team.LeagueID)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(ctx, league, team, req); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, s.rejected(ve)
		}
		return nil, err
	}

	now := s.clock.Now()
	c := &domain.Claim{
		ID:                   uuid.NewString(),
		LeagueID:             league.ID,
		TeamID:               team.ID,
		Season:               league.Season,
		Week:                 league.CurrentWeek,
		Kind:                 req.Kind,
		PriorityAtSubmission: team.WaiverPriority,
		SubmittedAt:          now,
		ExpiresAt:            nextRun(league.Rules, now),
		Status:               domain.ClaimStatusPending,
		UpdatedAt:            now,
	}
	if req.Kind.HasAdd() {
		c.AddPlayerID = req.AddPlayerID
	}
	if req.Kind.HasDrop() {
		c.DropPlayerID = req.DropPlayerID
	}
	if league.IsFAAB() && req.Kind.HasAdd() {
		c.BidAmount = req.BidAmount
	}

	if err := s.claims.Insert(ctx, c); err != nil {
		// Lost a race with a concurrent submission for the same player.
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, s.rejected(invalid(CodeDuplicatePending, "team %s already has a pending claim for %s", team.ID, c.AddPlayerID))
		}
		return nil, fmt.Errorf("insert claim: %w", err)
	}

	observability.RecordClaimSubmitted(string(league.Rules.Mode))
	s.log.WithFields(claimFields(c)).Info("claim submitted")
	return c, nil
}

func (s *Service) rejected(ve *ValidationError) error {
	observability.RecordValidationRejected(string(ve.Code))
	return ve
}

// CancelClaim cancels a PENDING claim on behalf of its owning team.
func (s *Service) CancelClaim(ctx context.Context, claimID, teamID string) (*domain.Claim, error) {
	return s.cancel(ctx, claimID, teamID, domain.ReasonCancelledByUser)
}

// CancelClaimAsCommissioner cancels any PENDING claim.
func (s *Service) CancelClaimAsCommissioner(ctx context.Context, claimID string) (*domain.Claim, error) {
	return s.cancel(ctx, claimID, "", domain.ReasonCancelledByCommissioner)
}

func (s *Service) cancel(ctx context.Context, claimID, teamID string, reason domain.FailureReason) (*domain.Claim, error) {
	c, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, fmt.Errorf("load claim: %w", err)
	}
	if teamID != "" && c.TeamID != teamID {
		return nil, ErrNotOwner
	}
	if !c.IsPending() {
		return nil, ErrNotPending
	}

	// Claims cannot be withdrawn once their league's run has started.
	now := s.clock.Now()
	release, ok, err := s.lease(ctx, c.LeagueID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer release()

	c.Cancel(reason, now)
	if err := s.claims.Finalize(ctx, c); err != nil {
		if errors.Is(err, storage.ErrNotPending) {
			return nil, ErrNotPending
		}
		return nil, fmt.Errorf("cancel claim: %w", err)
	}

	observability.RecordClaimResolved(string(c.Status), string(c.CancelReason))
	s.log.WithFields(claimFields(c)).WithField("reason", reason).Info("claim cancelled")

	s.report(ctx, &domain.WaiverRun{
		RunID:       idhash.ComputeRunID(c.LeagueID, domain.TriggerCancellation, c.Season, c.Week, now.UnixMilli()),
		LeagueID:    c.LeagueID,
		Season:      c.Season,
		Week:        c.Week,
		Trigger:     domain.TriggerCancellation,
		StartedAt:   now,
		CompletedAt: now,
		Claims:      []*domain.Claim{c},
	})
	return c, nil
}

// GetClaim retrieves a claim by id.
func (s *Service) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	c, err := s.claims.GetByID(ctx, claimID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrClaimNotFound
	}
	return c, err
}

// ListPendingClaims returns a team's PENDING claims, oldest first.
func (s *Service) ListPendingClaims(ctx context.Context, teamID string) ([]*domain.Claim, error) {
	return s.claims.GetPendingByTeam(ctx, teamID)
}

// ListLeagueClaims returns every claim of a league for one waiver period.
func (s *Service) ListLeagueClaims(ctx context.Context, leagueID string, season, week int) ([]*domain.Claim, error) {
	return s.claims.GetByLeagueWeek(ctx, leagueID, season, week)
}

// TriggerResolution runs a league's resolution now over every PENDING claim,
// including claims filed for a later slot. If another run holds the league, it
// returns a run with Skipped set and changes nothing.
func (s *Service) TriggerResolution(ctx context.Context, leagueID string) (*domain.WaiverRun, error) {
	return s.resolveLeague(ctx, leagueID, domain.TriggerManual, s.clock.Now(), time.Time{})
}

// ResolveDue runs every league that has PENDING claims whose scheduled
// resolution time has passed. Only those claims are resolved; claims filed
// after the deadline wait for their own slot. Leagues run concurrently and
// one league's failure does not affect the others.
func (s *Service) ResolveDue(ctx context.Context, now time.Time) error {
	leagues, err := s.leagues.GetWithWaivers(ctx)
	if err != nil {
		return fmt.Errorf("list leagues: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	// Bounded worker pool only: workers never return an error, so one
	// league's failure cannot cancel the others.
	var g errgroup.Group
	g.SetLimit(s.workers)

	for _, league := range leagues {
		league := league
		due, err := s.isDue(ctx, league.ID, now)
		if err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("league %s: %w", league.ID, err))
			mu.Unlock()
			continue
		}
		if !due {
			continue
		}

		g.Go(func() error {
			if _, err := s.resolveLeague(ctx, league.ID, domain.TriggerScheduled, now, now); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("league %s: %w", league.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// isDue reports whether the league holds a PENDING claim whose expires_at,
// the league's scheduled resolution time, has passed.
func (s *Service) isDue(ctx context.Context, leagueID string, now time.Time) (bool, error) {
	pending, err := s.claims.GetPendingByLeague(ctx, leagueID)
	if err != nil {
		return false, err
	}
	for _, c := range pending {
		if !c.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// resolveLeague runs the league and reports the result once the run lease is
// released, so a slow sink never blocks cancels or the next run.
func (s *Service) resolveLeague(ctx context.Context, leagueID string, trigger domain.RunTrigger, now, cutoff time.Time) (*domain.WaiverRun, error) {
	wr, err := s.runLeague(ctx, leagueID, trigger, now, cutoff)
	if wr != nil {
		s.report(ctx, wr)
	}
	return wr, err
}

// runLeague is one league run under the league's run lease. A zero cutoff
// resolves every PENDING claim; otherwise only claims expiring by cutoff.
func (s *Service) runLeague(ctx context.Context, leagueID string, trigger domain.RunTrigger, now, cutoff time.Time) (*domain.WaiverRun, error) {
	log := s.log.WithFields(logrus.Fields{"league_id": leagueID, "trigger": trigger})

	release, ok, err := s.lease(ctx, leagueID, now)
	if err != nil {
		observability.RecordRun(string(trigger), "error", 0)
		return nil, err
	}
	if !ok {
		log.Info("waiver run already in progress, skipping")
		observability.RecordLeaseSkip("resolve")
		return &domain.WaiverRun{LeagueID: leagueID, Trigger: trigger, StartedAt: now, Skipped: true}, nil
	}
	defer release()

	league, err := s.leagues.GetByID(ctx, leagueID)
	if err != nil {
		return nil, s.leagueErr(leagueID, err)
	}
	if league.Rules == nil {
		return nil, ErrNoWaiverRules
	}

	pending, err := s.claims.GetPendingByLeague(ctx, leagueID)
	if err != nil {
		observability.RecordRun(string(trigger), "error", 0)
		return nil, fmt.Errorf("load pending claims: %w", err)
	}
	if !cutoff.IsZero() {
		pending = dueBy(pending, cutoff)
	}

	wr := &domain.WaiverRun{
		RunID:     idhash.ComputeRunID(league.ID, trigger, league.Season, league.CurrentWeek, now.UnixMilli()),
		LeagueID:  league.ID,
		Season:    league.Season,
		Week:      league.CurrentWeek,
		Mode:      league.Rules.Mode,
		Trigger:   trigger,
		StartedAt: now,
	}
	log = log.WithField("run_id", wr.RunID)

	if len(pending) == 0 {
		log.Debug("no pending claims")
		wr.CompletedAt = s.clock.Now()
		return wr, nil
	}

	start := time.Now()
	log.WithFields(logrus.Fields{"mode": league.Rules.Mode, "pending": len(pending)}).Info("waiver run started")

	r := &run{
		id:     wr.RunID,
		league: league,
		exec:   s.executor,
		claims: s.claims,
		clock:  s.clock,
		log:    log,
	}
	runErr := resolverFor(league.Rules.Mode).resolve(ctx, r, pending)
	wr.Claims = r.decided
	wr.CompletedAt = s.clock.Now()

	if runErr != nil {
		wr.Aborted = true
		log.WithError(runErr).WithField("decided", len(r.decided)).Error("waiver run aborted, remaining claims stay pending")
		observability.RecordRun(string(trigger), "aborted", time.Since(start).Seconds())
		return wr, runErr
	}

	if league.Rules.Mode == domain.WaiverModePriority {
		if err := s.rerank(ctx, league, wr.CompletedAt); err != nil {
			log.WithError(err).Warn("priority re-rank after run failed")
		}
	}

	if err := s.leagues.MarkProcessed(ctx, league.ID, wr.CompletedAt); err != nil {
		log.WithError(err).Warn("failed to record run time")
	}
	// The week usually rolls over at the run boundary.
	s.InvalidateLeague(league.ID)

	observability.RecordRun(string(trigger), "success", time.Since(start).Seconds())
	log.WithField("decided", len(wr.Claims)).Info("waiver run completed")
	return wr, nil
}

// dueBy keeps the claims whose resolution time is at or before cutoff.
func dueBy(claims []*domain.Claim, cutoff time.Time) []*domain.Claim {
	due := claims[:0:0]
	for _, c := range claims {
		if !c.ExpiresAt.After(cutoff) {
			due = append(due, c)
		}
	}
	return due
}

// ExpireStale fails PENDING claims whose expires_at passed more than the
// grace period ago without a run picking them up. Returns the number expired.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.claims.GetExpiredPending(ctx, now.Add(-s.expiryGrace))
	if err != nil {
		return 0, fmt.Errorf("load expired claims: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	byLeague := make(map[string][]*domain.Claim)
	var order []string
	for _, c := range stale {
		if _, seen := byLeague[c.LeagueID]; !seen {
			order = append(order, c.LeagueID)
		}
		byLeague[c.LeagueID] = append(byLeague[c.LeagueID], c)
	}

	var (
		expired int
		errs    []error
	)
	for _, leagueID := range order {
		n, err := s.expireLeague(ctx, leagueID, byLeague[leagueID], now)
		expired += n
		if err != nil {
			errs = append(errs, fmt.Errorf("league %s: %w", leagueID, err))
		}
	}

	return expired, errors.Join(errs...)
}

func (s *Service) expireLeague(ctx context.Context, leagueID string, claims []*domain.Claim, now time.Time) (int, error) {
	wr, err := s.expireLocked(ctx, leagueID, claims, now)
	if wr == nil {
		return 0, err
	}
	s.report(ctx, wr)
	return len(wr.Claims), err
}

func (s *Service) expireLocked(ctx context.Context, leagueID string, claims []*domain.Claim, now time.Time) (*domain.WaiverRun, error) {
	log := s.log.WithFields(logrus.Fields{"league_id": leagueID, "trigger": domain.TriggerExpirySweep})

	release, ok, err := s.lease(ctx, leagueID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info("waiver run in progress, deferring expiration sweep")
		observability.RecordLeaseSkip("expire")
		return nil, nil
	}
	defer release()

	first := claims[0]
	wr := &domain.WaiverRun{
		RunID:     idhash.ComputeRunID(leagueID, domain.TriggerExpirySweep, first.Season, first.Week, now.UnixMilli()),
		LeagueID:  leagueID,
		Season:    first.Season,
		Week:      first.Week,
		Trigger:   domain.TriggerExpirySweep,
		StartedAt: now,
	}

	r := &run{id: wr.RunID, claims: s.claims, clock: s.clock, log: log}
	for _, c := range claims {
		if err := r.reject(ctx, c, domain.ReasonExpired, domain.Resolution{}); err != nil {
			wr.Claims = r.decided
			wr.Aborted = true
			return wr, err
		}
	}
	wr.Claims = r.decided
	wr.CompletedAt = s.clock.Now()

	log.WithField("expired", len(r.decided)).Warn("expired stale pending claims")
	return wr, nil
}

// RerankDue recomputes waiver priority for priority leagues whose next run
// is within the league's re-rank lead time and that were not re-ranked
// since that window opened.
func (s *Service) RerankDue(ctx context.Context, now time.Time) error {
	leagues, err := s.leagues.GetWithWaivers(ctx)
	if err != nil {
		return fmt.Errorf("list leagues: %w", err)
	}

	var errs []error
	for _, league := range leagues {
		if league.Rules.Mode != domain.WaiverModePriority {
			continue
		}
		windowOpen := nextRun(league.Rules, now).Add(-league.Rules.RerankLead)
		if now.Before(windowOpen) || !league.LastRerankedAt.Before(windowOpen) {
			continue
		}
		if err := s.RerankLeague(ctx, league.ID); err != nil {
			errs = append(errs, fmt.Errorf("league %s: %w", league.ID, err))
		}
	}
	return errors.Join(errs...)
}

// RerankLeague recomputes a league's waiver priority from standings.
func (s *Service) RerankLeague(ctx context.Context, leagueID string) error {
	now := s.clock.Now()
	release, ok, err := s.lease(ctx, leagueID, now)
	if err != nil {
		return err
	}
	if !ok {
		s.log.WithField("league_id", leagueID).Info("waiver run in progress, skipping re-rank")
		observability.RecordLeaseSkip("rerank")
		return nil
	}
	defer release()

	league, err := s.leagues.GetByID(ctx, leagueID)
	if err != nil {
		return s.leagueErr(leagueID, err)
	}
	return s.rerank(ctx, league, now)
}

// rerank assigns priorities 1..N, worst record first. Caller holds the lease.
func (s *Service) rerank(ctx context.Context, league *domain.League, now time.Time) error {
	teams, err := s.teams.GetByLeague(ctx, league.ID)
	if err != nil {
		return fmt.Errorf("load teams: %w", err)
	}

	for i, t := range rankByRecord(teams) {
		rank := i + 1
		if t.WaiverPriority == rank {
			continue
		}
		if err := s.roster.SetPriority(ctx, t.ID, rank); err != nil {
			return fmt.Errorf("set priority for %s: %w", t.ID, err)
		}
	}

	if err := s.leagues.MarkReranked(ctx, league.ID, now); err != nil {
		return fmt.Errorf("record re-rank: %w", err)
	}
	s.log.WithFields(logrus.Fields{"league_id": league.ID, "teams": len(teams)}).Info("waiver priority re-ranked")
	return nil
}

// lease takes the league's run lease and renews it every third of its TTL
// until released. release is safe to call after ctx is done.
func (s *Service) lease(ctx context.Context, leagueID string, now time.Time) (func(), bool, error) {
	holder := s.instanceID + "/" + uuid.NewString()
	ok, err := s.leagues.AcquireRunLease(ctx, leagueID, holder, now, s.leaseTTL)
	if err != nil {
		return nil, false, s.leagueErr(leagueID, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go s.renewLease(ctx, leagueID, holder, stop, done)

	release := func() {
		close(stop)
		<-done
		if err := s.leagues.ReleaseRunLease(context.WithoutCancel(ctx), leagueID, holder); err != nil {
			s.log.WithField("league_id", leagueID).WithError(err).Warn("failed to release run lease")
		}
	}
	return release, true, nil
}

func (s *Service) renewLease(ctx context.Context, leagueID, holder string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log := s.log.WithField("league_id", leagueID)

	ticker := time.NewTicker(s.leaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := s.leagues.AcquireRunLease(ctx, leagueID, holder, s.clock.Now(), s.leaseTTL)
			switch {
			case err != nil:
				log.WithError(err).Warn("failed to renew run lease")
			case !ok:
				log.Error("run lease taken by another holder")
				return
			}
		}
	}
}

func (s *Service) leagueErr(leagueID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrLeagueNotFound, leagueID)
	}
	return fmt.Errorf("league %s: %w", leagueID, err)
}

func (s *Service) cachedLeague(ctx context.Context, leagueID string) (*domain.League, error) {
	if cached, ok := s.cache.Get(leagueID); ok {
		return cached.(*domain.League).Clone(), nil
	}

	league, err := s.leagues.GetByID(ctx, leagueID)
	if err != nil {
		return nil, s.leagueErr(leagueID, err)
	}
	s.cache.SetDefault(leagueID, league.Clone())
	return league, nil
}

// InvalidateLeague drops a cached league after its rules change.
func (s *Service) InvalidateLeague(leagueID string) {
	s.cache.Delete(leagueID)
}

// report hands the run to the reporter. Reporting is best-effort.
func (s *Service) report(ctx context.Context, wr *domain.WaiverRun) {
	if s.reporter == nil || len(wr.Claims) == 0 {
		return
	}
	if err := s.reporter.Report(context.WithoutCancel(ctx), wr); err != nil {
		observability.RecordReportFailure()
		s.log.WithFields(logrus.Fields{"league_id": wr.LeagueID, "run_id": wr.RunID}).
			WithError(err).Warn("failed to report waiver run")
	}
}

// nextRun is the league's next scheduled resolution strictly after t.
func nextRun(rules *domain.WaiverRules, t time.Time) time.Time {
	return slotCadence(rules).Next(t)
}

func slotCadence(rules *domain.WaiverRules) scheduler.Weekly {
	return scheduler.Weekly{
		Day:      rules.ProcessDay,
		Hour:     rules.ProcessHour,
		Minute:   rules.ProcessMinute,
		Location: rules.Location(),
	}
}
