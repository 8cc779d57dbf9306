// Package syncer decides when the board is synchronized with the remote
// document and how the two versions are reconciled.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/taboard/internal/apperr"
	"github.com/starford/taboard/internal/connection"
	"github.com/starford/taboard/internal/models"
	"github.com/starford/taboard/internal/state"
)

// Reason names what triggered a sync.
type Reason string

const (
	ReasonInterval    Reason = "interval"
	ReasonFreshness   Reason = "freshness"
	ReasonConnect     Reason = "connect"
	ReasonManual      Reason = "manual"
	ReasonAddCard     Reason = "add-card"
	ReasonLocalChange Reason = "local-change"
)

// Background reasons are best effort: their failures are logged, not returned.
func (r Reason) background() bool {
	return r == ReasonInterval || r == ReasonFreshness || r == ReasonLocalChange
}

// local reasons carry local edits that still need to reach the remote.
func (r Reason) local() bool {
	return r == ReasonAddCard || r == ReasonLocalChange
}

func (r Reason) valid() bool {
	switch r {
	case ReasonInterval, ReasonFreshness, ReasonConnect, ReasonManual, ReasonAddCard, ReasonLocalChange:
		return true
	}
	return false
}

// Outcome reports what a sync did.
type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeAdopted  Outcome = "adopted"
	OutcomeUploaded Outcome = "uploaded"
	OutcomeMerged   Outcome = "merged"
	OutcomeFailed   Outcome = "failed"
)

// Request describes one sync attempt.
type Request struct {
	Reason Reason
	// Local overrides the local document; nil means the store's current state.
	Local *models.AppState
	// Event is the mutation that triggered an add-card sync.
	Event *models.Event
}

// Defaults for sync timing.
const (
	DefaultInterval         = 30 * time.Minute
	DefaultFreshness        = 60 * time.Minute
	DefaultLocalChangeDelay = 1500 * time.Millisecond
)

// Remote is the remote document API used by the orchestrator.
type Remote interface {
	EnsureFile(ctx context.Context, token string) (string, bool, error)
	Upload(ctx context.Context, token, fileID string, s *models.AppState) error
	Download(ctx context.Context, token, fileID string) (*models.AppState, error)
}

// Saver persists state snapshots.
type Saver interface {
	Save(s *models.AppState)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithInterval sets the period of background syncs.
func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.interval = d }
}

// WithFreshness sets the minimum age of the last check before a freshness
// sync goes to the network.
func WithFreshness(d time.Duration) Option {
	return func(o *Orchestrator) { o.freshness = d }
}

// WithLocalChangeDelay sets the quiet period after an edit before it is synced.
func WithLocalChangeDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.localDelay = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator is the SyncOrchestrator. At most one sync runs at a time;
// triggers arriving meanwhile are dropped.
type Orchestrator struct {
	store  *state.Store
	conn   *connection.Manager
	remote Remote
	saver  Saver
	logger *slog.Logger

	interval   time.Duration
	freshness  time.Duration
	localDelay time.Duration
	now        func() time.Time

	inFlight atomic.Bool
	// dirty is set when local edits could not be synced and need a follow-up.
	dirty atomic.Bool
	// ticking reports whether the interval ticker is armed.
	ticking     atomic.Bool
	connChanged chan struct{}

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	mu         sync.Mutex
	cancelSync context.CancelFunc
	localTimer *time.Timer
	// adds holds locally added cards that no sync has settled yet.
	adds    []models.AddedCard
	started bool
	stopped bool
	unsubs  []func()
	wg      sync.WaitGroup
}

// New creates an Orchestrator. Call Start to attach it to the store and
// the connection and to run the background timers.
func New(store *state.Store, conn *connection.Manager, remote Remote, saver Saver, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		conn:        conn,
		remote:      remote,
		saver:       saver,
		logger:      logger,
		interval:    DefaultInterval,
		freshness:   DefaultFreshness,
		localDelay:  DefaultLocalChangeDelay,
		now:         func() time.Time { return time.Now().UTC() },
		connChanged: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.lifeCtx, o.lifeCancel = context.WithCancel(context.Background())
	return o
}

// SyncNow runs one reconciliation cycle. A sync that is not possible right
// now (not connected, already in flight, remote checked recently) reports
// OutcomeSkipped with a nil error. Failures of background reasons are
// logged and reported as OutcomeFailed with a nil error.
func (o *Orchestrator) SyncNow(ctx context.Context, req Request) (Outcome, error) {
	if !req.Reason.valid() {
		return OutcomeFailed, fmt.Errorf("sync: unknown reason %q: %w", req.Reason, apperr.ErrInvalid)
	}
	if !o.conn.Connected() {
		return OutcomeSkipped, nil
	}
	if req.Reason == ReasonFreshness && !o.stale() {
		return OutcomeSkipped, nil
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		if req.Reason.local() {
			o.addedCards(req)
			o.dirty.Store(true)
			// The running sync may have finished before the flag was set.
			if !o.inFlight.Load() && o.dirty.Swap(false) {
				o.scheduleLocalChange()
			}
		}
		o.logger.Debug("sync: dropped, already in flight", slog.String("reason", string(req.Reason)))
		return OutcomeSkipped, nil
	}

	outcome, err := o.run(ctx, req)
	o.inFlight.Store(false)

	if o.dirty.Swap(false) {
		o.scheduleLocalChange()
	}
	return outcome, err
}

func (o *Orchestrator) run(ctx context.Context, req Request) (Outcome, error) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return OutcomeSkipped, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancelSync = cancel
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.cancelSync = nil
		o.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	o.conn.MarkSyncing()
	outcome, fileID, err := o.reconcile(ctx, req)
	if err != nil {
		o.conn.MarkError(err)
		if req.Reason.background() {
			o.logger.Warn("sync: background sync failed",
				slog.String("reason", string(req.Reason)),
				slog.String("error", err.Error()))
			return OutcomeFailed, nil
		}
		return OutcomeFailed, err
	}

	if outcome == OutcomeSkipped {
		o.conn.MarkIdle()
	} else {
		o.conn.MarkSynced(fileID, o.now())
	}
	o.logger.Info("sync: completed",
		slog.String("reason", string(req.Reason)),
		slog.String("outcome", string(outcome)),
		slog.Duration("took", time.Since(start)))
	return outcome, nil
}

// reconcile applies last-writer-wins between the local document L and the
// remote document R, with two exceptions: on connect R wins when it holds
// data, and a newer R does not drop cards that were just added locally.
func (o *Orchestrator) reconcile(ctx context.Context, req Request) (Outcome, string, error) {
	token, err := o.conn.Token(ctx)
	if err != nil {
		return OutcomeFailed, "", err
	}
	fileID, created, err := o.remote.EnsureFile(ctx, token)
	if err != nil {
		return OutcomeFailed, "", err
	}

	// Collected before L is read so every collected card is already in L.
	added := o.addedCards(req)
	local := req.Local
	if local == nil {
		local = o.store.GetState()
	}

	remote, err := o.remote.Download(ctx, token, fileID)
	if err != nil {
		return OutcomeFailed, fileID, err
	}
	o.conn.MarkChecked(o.now())

	switch {
	case req.Reason == ReasonConnect && !created && !state.IsEmptyDocument(remote):
		o.store.ReplaceState(remote, adoptOptions(time.Time{}))
		o.settleAdds(added)
		return OutcomeAdopted, fileID, nil

	case remote.LastUpdated.After(local.LastUpdated):
		if missingAdds(remote, local, added) {
			merged := MergeAddedCards(remote, local, added)
			opts := adoptOptions(local.LastUpdated)
			opts.PreserveTimestamp = false
			installed := o.store.ReplaceState(merged, opts)
			if installed == nil {
				o.dirty.Store(true)
				return OutcomeSkipped, fileID, nil
			}
			if err := o.remote.Upload(ctx, token, fileID, installed); err != nil {
				return OutcomeFailed, fileID, err
			}
			o.settleAdds(added)
			return OutcomeMerged, fileID, nil
		}
		if o.store.ReplaceState(remote, adoptOptions(local.LastUpdated)) == nil {
			o.dirty.Store(true)
			return OutcomeSkipped, fileID, nil
		}
		o.settleAdds(added)
		return OutcomeAdopted, fileID, nil

	default:
		if err := o.remote.Upload(ctx, token, fileID, local); err != nil {
			return OutcomeFailed, fileID, err
		}
		o.settleAdds(added)
		return OutcomeUploaded, fileID, nil
	}
}

// missingAdds reports whether a card in added is still in local but absent
// from remote.
func missingAdds(remote, local *models.AppState, added []models.AddedCard) bool {
	for _, a := range added {
		if state.ContainsCard(local, a.ID) && !state.ContainsCard(remote, a.ID) {
			return true
		}
	}
	return false
}

// addedCards records the cards an add-card request carries and returns every
// added card still waiting for a sync.
func (o *Orchestrator) addedCards(req Request) []models.AddedCard {
	o.mu.Lock()
	defer o.mu.Unlock()
	if req.Reason == ReasonAddCard && req.Event != nil {
		for _, a := range req.Event.AddedCards {
			if a.ID != "" && !slices.ContainsFunc(o.adds, func(p models.AddedCard) bool { return p.ID == a.ID }) {
				o.adds = append(o.adds, a)
			}
		}
	}
	return slices.Clone(o.adds)
}

// settleAdds forgets cards that reached both documents.
func (o *Orchestrator) settleAdds(done []models.AddedCard) {
	if len(done) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.adds = slices.DeleteFunc(o.adds, func(p models.AddedCard) bool {
		return slices.ContainsFunc(done, func(d models.AddedCard) bool { return d.ID == p.ID })
	})
}

// adoptOptions installs a remote document without scheduling another sync.
// A non-zero ifUnchanged skips the install when local edits landed meanwhile.
func adoptOptions(ifUnchanged time.Time) state.ReplaceOptions {
	return state.ReplaceOptions{
		PreserveTimestamp: true,
		Event:             &models.Event{Kind: models.EventRemoteAdopt},
		IfLastUpdated:     ifUnchanged,
	}
}

func (o *Orchestrator) stale() bool {
	checked := o.conn.Snapshot().LastCheckedAt
	return checked == nil || o.now().Sub(*checked) >= o.freshness
}

// HandleStateChange is the store listener: it persists every change and
// schedules the sync the change calls for.
func (o *Orchestrator) HandleStateChange(s *models.AppState, ev *models.Event) {
	// Another process wrote this document and owns its sync.
	if ev.Is(models.EventExternalReload) {
		return
	}
	o.saver.Save(s)

	if ev.Is(models.EventInit) || ev.Is(models.EventRemoteAdopt) {
		return
	}
	if !o.conn.Connected() {
		return
	}
	if ev.Is(models.EventAddCard) && len(ev.AddedCards) > 0 {
		o.goSync(Request{Reason: ReasonAddCard, Event: ev})
		return
	}
	o.scheduleLocalChange()
}

// CheckFreshness runs a freshness sync in the background.
func (o *Orchestrator) CheckFreshness() {
	o.goSync(Request{Reason: ReasonFreshness})
}

// Connect connects the account and runs the connect-time sync.
func (o *Orchestrator) Connect(ctx context.Context) error {
	if err := o.conn.Connect(ctx); err != nil {
		return err
	}
	_, err := o.SyncNow(ctx, Request{Reason: ReasonConnect})
	return err
}

// Disconnect cancels pending sync work and disconnects the account. The
// interval ticker pauses until the next connect.
func (o *Orchestrator) Disconnect(ctx context.Context) error {
	o.cancelPending()
	return o.conn.Disconnect(ctx)
}

// Start attaches the orchestrator to the store and the connection, starts
// the interval timer and runs one freshness check. The timer only ticks while
// connected and stops for good when ctx is done or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started || o.stopped {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.wg.Add(1)
	o.mu.Unlock()

	unsubStore := o.store.Subscribe(o.HandleStateChange)
	unsubConn := o.conn.Subscribe(o.onConnection)
	o.mu.Lock()
	o.unsubs = append(o.unsubs, unsubStore, unsubConn)
	o.mu.Unlock()

	go o.loop(ctx)
	o.CheckFreshness()
	o.logger.Info("sync: started",
		slog.Duration("interval", o.interval),
		slog.Duration("freshness", o.freshness))
}

func (o *Orchestrator) loop(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	o.ticking.Store(true)
	defer o.ticking.Store(false)
	for {
		if connected := o.conn.Connected(); connected != o.ticking.Load() {
			if connected {
				ticker.Reset(o.interval)
			} else {
				ticker.Stop()
			}
			o.ticking.Store(connected)
		}
		select {
		case <-ctx.Done():
			return
		case <-o.lifeCtx.Done():
			return
		case <-o.connChanged:
		case <-ticker.C:
			_, _ = o.SyncNow(o.lifeCtx, Request{Reason: ReasonInterval})
		}
	}
}

// Stop detaches the orchestrator, clears its timers, cancels an in-flight
// sync and waits for background work to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	if o.localTimer != nil {
		o.localTimer.Stop()
		o.localTimer = nil
	}
	if o.cancelSync != nil {
		o.cancelSync()
	}
	unsubs := o.unsubs
	o.unsubs = nil
	o.mu.Unlock()

	o.lifeCancel()
	for _, unsub := range unsubs {
		unsub()
	}
	o.wg.Wait()
	o.logger.Info("sync: stopped")
}

func (o *Orchestrator) onConnection(snap connection.Snapshot) {
	if snap.Status == connection.StatusDisconnected {
		o.cancelPending()
	}
	select {
	case o.connChanged <- struct{}{}:
	default:
	}
}

// cancelPending clears the local-change timer, forgets unsynced added cards
// and aborts an in-flight sync.
func (o *Orchestrator) cancelPending() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.localTimer != nil {
		o.localTimer.Stop()
		o.localTimer = nil
	}
	if o.cancelSync != nil {
		o.cancelSync()
	}
	o.adds = nil
	o.dirty.Store(false)
}

func (o *Orchestrator) scheduleLocalChange() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	if o.localTimer != nil {
		o.localTimer.Stop()
	}
	o.localTimer = time.AfterFunc(o.localDelay, func() {
		o.goSync(Request{Reason: ReasonLocalChange})
	})
}

func (o *Orchestrator) goSync(req Request) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		if _, err := o.SyncNow(o.lifeCtx, req); err != nil {
			o.logger.Warn("sync: failed",
				slog.String("reason", string(req.Reason)),
				slog.String("error", err.Error()))
		}
	}()
}
