// Package push sequences accepted submissions into repository commits and
// tracks the UI-facing push state.
package push

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gitgrind/gitgrind/pkg/bus"
	"github.com/gitgrind/gitgrind/pkg/commit"
	"github.com/gitgrind/gitgrind/pkg/dedup"
	gerrors "github.com/gitgrind/gitgrind/pkg/errors"
	"github.com/gitgrind/gitgrind/pkg/github"
	"github.com/gitgrind/gitgrind/pkg/logging"
	"github.com/gitgrind/gitgrind/pkg/normalize"
	"github.com/gitgrind/gitgrind/pkg/record"
	"github.com/gitgrind/gitgrind/pkg/storage"
)

// State is the UI-facing push state.
type State string

const (
	StateIdle    State = "idle"
	StatePushing State = "pushing"
	StateSuccess State = "success"
	StateError   State = "error"
)

const (
	// DefaultSuccessDelay is how long the success state is displayed before
	// reverting to idle.
	DefaultSuccessDelay = 5 * time.Second

	// DefaultPollInterval is the acceptance poller cadence.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultPollWindow bounds the acceptance poller; expiry is silent.
	DefaultPollWindow = 30 * time.Second
)

// StateEvent is published on the bus for every state transition.
type StateEvent struct {
	State State  `json:"state"`
	Slug  string `json:"slug,omitempty"`
	Error string `json:"error,omitempty"`
	At    int64  `json:"at"` // unix ms
}

// Committer is the slice of the commit engine the orchestrator needs.
type Committer interface {
	EnsureRepository(ctx context.Context, token string, repo github.RepoConfig) error
	Commit(ctx context.Context, token string, repo github.RepoConfig, rec *record.SubmissionRecord) error
}

// SettingsStore is the slice of the durable store the orchestrator needs.
type SettingsStore interface {
	LoadSettings() (*storage.Settings, error)
	UpdateSettings(mutate func(*storage.Settings)) (*storage.Settings, error)
	RecordPush(entry storage.PushLogEntry) error
}

// Options tune the orchestrator's timers.
type Options struct {
	SuccessDelay time.Duration
	PollInterval time.Duration
	PollWindow   time.Duration
}

// Orchestrator is the push state machine: idle → pushing → success|error,
// error → pushing on retry, success → idle after a display delay. The
// pushing state acts as a mutex: a trigger while a push is in flight is a
// no-op.
type Orchestrator struct {
	committer Committer
	store     SettingsStore
	dedup     *dedup.Store
	msgBus    bus.MessageBus
	logger    *logging.Logger

	successDelay time.Duration
	pollInterval time.Duration
	pollWindow   time.Duration

	mu          sync.Mutex
	state       State
	contextSlug string
	retained    *record.SubmissionRecord
	lastError   string
	resetTimer  *time.Timer
	epoch       int // invalidates scheduled success resets

	now func() time.Time
}

// New creates an Orchestrator. dedupStore must not be nil; store, msgBus and
// logger may be nil for surfaces that do not need them.
func New(committer Committer, store SettingsStore, dedupStore *dedup.Store, msgBus bus.MessageBus, logger *logging.Logger, opts Options) *Orchestrator {
	if opts.SuccessDelay <= 0 {
		opts.SuccessDelay = DefaultSuccessDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.PollWindow <= 0 {
		opts.PollWindow = DefaultPollWindow
	}
	return &Orchestrator{
		committer:    committer,
		store:        store,
		dedup:        dedupStore,
		msgBus:       msgBus,
		logger:       logger,
		successDelay: opts.SuccessDelay,
		pollInterval: opts.PollInterval,
		pollWindow:   opts.PollWindow,
		state:        StateIdle,
		now:          time.Now,
	}
}

// Snapshot returns the current state, the active slug context, and the last
// error message.
func (o *Orchestrator) Snapshot() (State, string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.contextSlug, o.lastError
}

// SetContext records the problem the user is currently viewing. A slug
// change clears the retained record and any sticky error state, so a stale
// acceptance cannot be pushed against an unrelated problem.
func (o *Orchestrator) SetContext(ctx context.Context, slug string) {
	o.mu.Lock()
	if slug == o.contextSlug {
		o.mu.Unlock()
		return
	}
	o.contextSlug = slug
	o.retained = nil
	o.lastError = ""
	changed := false
	if o.state == StateError || o.state == StateSuccess {
		o.setStateLocked(StateIdle, "")
		changed = true
	}
	o.mu.Unlock()

	if changed {
		o.publishState(ctx)
	}
}

// HandleCandidate is the auto-push entry point for normalized submissions.
// Non-accepted results and results outside automatic-upload mode are dropped.
func (o *Orchestrator) HandleCandidate(ctx context.Context, res *normalize.Result) error {
	if res == nil || res.Record == nil {
		return nil
	}
	o.mu.Lock()
	if res.Record.Slug != "" {
		o.contextSlug = res.Record.Slug
	}
	if res.Accepted && res.Record.Eligible() {
		o.retained = res.Record
	}
	o.mu.Unlock()

	if !res.Accepted {
		o.logger.Debug(logging.CategoryPush, "candidate_not_accepted", "dropping non-accepted candidate", map[string]any{
			"slug": res.Record.Slug,
		})
		return nil
	}

	if o.store != nil {
		settings, err := o.store.LoadSettings()
		if err != nil {
			return err
		}
		if !settings.UploadEnabled {
			o.logger.Debug(logging.CategoryPush, "upload_disabled", "automatic upload disabled", map[string]any{
				"slug": res.Record.Slug,
			})
			return nil
		}
	}

	return o.Push(ctx, res.Record)
}

// ManualPush pushes the retained record for the current problem context. It
// is the retry path when the state is error, and the explicit-push path when
// an accepted record is already retained.
func (o *Orchestrator) ManualPush(ctx context.Context) error {
	o.mu.Lock()
	rec := o.retained
	o.mu.Unlock()

	if rec == nil {
		return gerrors.New(gerrors.ErrCodeNoCandidate, "no accepted submission for the current problem").
			WithUserMessage("Solve the problem first, then push.")
	}
	return o.Push(ctx, rec)
}

// Push runs one push attempt through the state machine. A call while a push
// is already in flight returns immediately without effect.
func (o *Orchestrator) Push(ctx context.Context, rec *record.SubmissionRecord) error {
	if rec == nil || !rec.Eligible() {
		return gerrors.New(gerrors.ErrCodeRecordInvalid, "record is missing code or slug")
	}

	o.mu.Lock()
	if o.state == StatePushing {
		o.mu.Unlock()
		return nil
	}
	o.epoch++
	o.contextSlug = rec.Slug
	o.retained = rec
	o.lastError = ""
	o.setStateLocked(StatePushing, "")
	o.mu.Unlock()
	o.publishState(ctx)

	if o.dedup != nil && o.dedup.IsRecent(rec) {
		o.logger.Info(logging.CategoryPush, "duplicate_skipped", "submission already pushed recently", map[string]any{
			"slug": rec.Slug,
		})
		o.recordOutcome(rec, storage.PushStatusSkipped, "duplicate fingerprint")
		o.transition(ctx, StateIdle, "")
		return nil
	}

	if err := o.doCommit(ctx, rec); err != nil {
		o.logger.Error(logging.CategoryPush, "push_failed", "push attempt failed", map[string]any{
			"slug":  rec.Slug,
			"error": err.Error(),
		})
		o.recordOutcome(rec, storage.PushStatusError, err.Error())
		o.countPush(rec, false)
		o.transition(ctx, StateError, userMessage(err))
		return err
	}

	if o.dedup != nil {
		o.dedup.MarkRecent(rec)
	}
	o.logger.Info(logging.CategoryPush, "push_succeeded", "submission pushed", map[string]any{
		"slug":     rec.Slug,
		"language": rec.Language,
		"folder":   commit.Folder(rec),
	})
	o.recordOutcome(rec, storage.PushStatusSuccess, "")
	o.countPush(rec, true)
	o.transition(ctx, StateSuccess, "")
	o.scheduleIdleReset(ctx)
	return nil
}

// PollAcceptance watches for acceptance of the current submission, invoking
// check at a fixed cadence until it yields a record or the window expires.
// Expiry is silent; a rejected submission is the expected outcome.
func (o *Orchestrator) PollAcceptance(ctx context.Context, check func() (*record.SubmissionRecord, bool)) {
	deadline := time.NewTimer(o.pollWindow)
	defer deadline.Stop()
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			o.logger.Debug(logging.CategoryPush, "poll_expired", "acceptance not detected within window", nil)
			return
		case <-ticker.C:
			rec, ok := check()
			if !ok {
				continue
			}
			_ = o.HandleCandidate(ctx, &normalize.Result{Record: rec, Accepted: true})
			return
		}
	}
}

// doCommit resolves credentials and target repository, then invokes the
// commit engine. Credentials are read, never mutated, on each attempt.
func (o *Orchestrator) doCommit(ctx context.Context, rec *record.SubmissionRecord) error {
	var token string
	repo := github.RepoConfig{}
	if o.store != nil {
		settings, err := o.store.LoadSettings()
		if err != nil {
			return err
		}
		if !settings.Auth.Configured() {
			return gerrors.New(gerrors.ErrCodeMissingAuth, "no GitHub credentials configured").
				WithUserMessage("Connect your GitHub account first.")
		}
		if !settings.Repo.Configured() {
			return gerrors.New(gerrors.ErrCodeMissingRepo, "no target repository configured").
				WithUserMessage("Choose a solutions repository first.")
		}
		token = settings.Auth.Token
		repo = github.RepoConfig{
			Owner:         settings.Repo.Owner,
			Name:          settings.Repo.Name,
			DefaultBranch: settings.Repo.DefaultBranch,
		}
	}

	if err := o.committer.EnsureRepository(ctx, token, repo); err != nil {
		return err
	}
	return o.committer.Commit(ctx, token, repo, rec)
}

// transition moves to a new state and publishes the event.
func (o *Orchestrator) transition(ctx context.Context, state State, errMsg string) {
	o.mu.Lock()
	o.setStateLocked(state, errMsg)
	o.mu.Unlock()
	o.publishState(ctx)
}

func (o *Orchestrator) setStateLocked(state State, errMsg string) {
	o.state = state
	o.lastError = errMsg
	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
}

// scheduleIdleReset reverts success to idle after the display delay, unless
// a newer attempt has started in the meantime.
func (o *Orchestrator) scheduleIdleReset(ctx context.Context) {
	o.mu.Lock()
	epoch := o.epoch
	o.resetTimer = time.AfterFunc(o.successDelay, func() {
		o.mu.Lock()
		if o.epoch != epoch || o.state != StateSuccess {
			o.mu.Unlock()
			return
		}
		o.setStateLocked(StateIdle, "")
		o.mu.Unlock()
		o.publishState(ctx)
	})
	o.mu.Unlock()
}

func (o *Orchestrator) publishState(ctx context.Context) {
	if o.msgBus == nil {
		return
	}
	state, slug, errMsg := o.Snapshot()
	event := StateEvent{
		State: state,
		Slug:  slug,
		Error: errMsg,
		At:    o.now().UnixMilli(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = o.msgBus.Publish(ctx, bus.SubjectPushState, data)
}

func (o *Orchestrator) recordOutcome(rec *record.SubmissionRecord, status, detail string) {
	metricPushes.WithLabelValues(status).Inc()
	if o.store == nil {
		return
	}
	_ = o.store.RecordPush(storage.PushLogEntry{
		Slug:     rec.Slug,
		Folder:   commit.Folder(rec),
		Language: rec.Language,
		Status:   status,
		Detail:   detail,
	})
}

func (o *Orchestrator) countPush(rec *record.SubmissionRecord, ok bool) {
	if o.store == nil {
		return
	}
	nowMillis := o.now().UnixMilli()
	_, _ = o.store.UpdateSettings(func(s *storage.Settings) {
		s.Statistics.CountPush(rec.Slug, rec.Language, nowMillis, ok)
	})
}

// userMessage prefers the structured user-facing message when one is set.
func userMessage(err error) string {
	if ge, ok := err.(*gerrors.Error); ok && ge.UserMessage != "" {
		return ge.UserMessage
	}
	return err.Error()
}
