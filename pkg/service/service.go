// Package service glues the capture pipeline to the UI boundary. It owns the
// settings store and is the only component that mutates credentials and the
// repository configuration; everything else reads them per call.
package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gitgrind/gitgrind/pkg/bus"
	gerrors "github.com/gitgrind/gitgrind/pkg/errors"
	"github.com/gitgrind/gitgrind/pkg/github"
	"github.com/gitgrind/gitgrind/pkg/intercept"
	"github.com/gitgrind/gitgrind/pkg/logging"
	"github.com/gitgrind/gitgrind/pkg/normalize"
	"github.com/gitgrind/gitgrind/pkg/push"
	"github.com/gitgrind/gitgrind/pkg/record"
	"github.com/gitgrind/gitgrind/pkg/storage"
)

// Message envelope types. These are the sole interface UI surfaces use to
// drive the core.
const (
	TypeSubmission   = "submission"
	TypeGetSettings  = "get-settings"
	TypeSaveRepo     = "save-repo"
	TypeToggleUpload = "toggle-upload"
	TypeLogout       = "logout"
	TypeStartAuth    = "start-auth"
	TypeResumeAuth   = "resume-auth"
)

// Types lists every envelope type the dispatcher handles.
var Types = []string{
	TypeSubmission, TypeGetSettings, TypeSaveRepo, TypeToggleUpload,
	TypeLogout, TypeStartAuth, TypeResumeAuth,
}

// Envelope is a request from a UI surface.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the response envelope.
type Reply struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Authenticator is the slice of the OAuth helper the service needs.
type Authenticator interface {
	StartDeviceFlow(ctx context.Context) (*github.DeviceAuth, error)
	PollDeviceToken(ctx context.Context, deviceCode string) (string, error)
	ExchangeCode(ctx context.Context, code string) (string, error)
}

// UserResolver resolves the username behind an access token.
type UserResolver interface {
	GetUsername(ctx context.Context, token string) (string, error)
}

// Service is the message dispatcher behind the UI boundary.
type Service struct {
	store      *storage.Store
	oauth      Authenticator
	users      UserResolver
	committer  push.Committer
	orch       *push.Orchestrator
	normalizer *normalize.Normalizer
	msgBus     bus.MessageBus
	logger     *logging.Logger
	siteBase   string

	mu            sync.Mutex
	pendingDevice *github.DeviceAuth

	now func() time.Time
}

// New wires a Service. msgBus and logger may be nil.
func New(store *storage.Store, oauth Authenticator, users UserResolver, committer push.Committer,
	orch *push.Orchestrator, normalizer *normalize.Normalizer, msgBus bus.MessageBus,
	logger *logging.Logger, siteBase string) *Service {
	return &Service{
		store:      store,
		oauth:      oauth,
		users:      users,
		committer:  committer,
		orch:       orch,
		normalizer: normalizer,
		msgBus:     msgBus,
		logger:     logger,
		siteBase:   siteBase,
		now:        time.Now,
	}
}

// Handle dispatches one envelope and always returns a reply; failures are
// carried in the reply, never panicked or dropped.
func (s *Service) Handle(ctx context.Context, env Envelope) Reply {
	var (
		data any
		err  error
	)
	switch env.Type {
	case TypeSubmission:
		data, err = s.handleSubmission(ctx, env.Payload)
	case TypeGetSettings:
		data, err = s.handleGetSettings(ctx)
	case TypeSaveRepo:
		data, err = s.handleSaveRepo(ctx, env.Payload)
	case TypeToggleUpload:
		data, err = s.handleToggleUpload(ctx, env.Payload)
	case TypeLogout:
		data, err = s.handleLogout(ctx)
	case TypeStartAuth:
		data, err = s.handleStartAuth(ctx)
	case TypeResumeAuth:
		data, err = s.handleResumeAuth(ctx, env.Payload)
	default:
		err = gerrors.New(gerrors.ErrCodeInvalidInput, "unknown message type: "+env.Type)
	}

	if err != nil {
		s.logger.Warn(logging.CategoryIPC, "message_failed", "message handling failed", map[string]any{
			"type":  env.Type,
			"error": err.Error(),
		})
		return errorReply(err)
	}
	return Reply{OK: true, Data: data}
}

// Listen registers bus responders for every envelope type and consumes
// candidate events from the capture pipeline. Subscriptions live until the
// context is cancelled.
func (s *Service) Listen(ctx context.Context) error {
	if s.msgBus == nil {
		return nil
	}
	for _, envType := range Types {
		envType := envType
		_, err := s.msgBus.Subscribe(ctx, bus.MessageSubject(envType), func(msg *bus.Message) []byte {
			reply := s.Handle(ctx, Envelope{Type: envType, Payload: msg.Data})
			data, err := json.Marshal(reply)
			if err != nil {
				return []byte(`{"ok":false,"error":"internal"}`)
			}
			return data
		})
		if err != nil {
			return err
		}
	}

	_, err := s.msgBus.Subscribe(ctx, bus.SubjectCandidate, func(msg *bus.Message) []byte {
		var cand intercept.Candidate
		if err := json.Unmarshal(msg.Data, &cand); err != nil {
			return nil
		}
		s.ProcessCandidate(ctx, &cand)
		return nil
	})
	return err
}

// ProcessCandidate runs a network candidate through normalization and the
// push orchestrator.
func (s *Service) ProcessCandidate(ctx context.Context, cand *intercept.Candidate) {
	res := s.normalizer.FromCandidate(ctx, cand, nil)
	s.logger.Info(logging.CategoryNormalize, "candidate_normalized", "network candidate normalized", map[string]any{
		"slug":     res.Record.Slug,
		"language": res.Record.Language,
		"accepted": res.Accepted,
	})
	if err := s.orch.HandleCandidate(ctx, res); err != nil {
		s.logger.Error(logging.CategoryPush, "candidate_push_failed", "candidate push failed", map[string]any{
			"slug":  res.Record.Slug,
			"error": err.Error(),
		})
	}
}

type submissionPayload struct {
	record.SubmissionRecord
	Accepted bool `json:"accepted"`
	Force    bool `json:"force,omitempty"`
}

// handleSubmission accepts a submission record captured by a UI surface.
// Accepted records go through the auto-push gate; force bypasses acceptance
// for an explicit user push.
func (s *Service) handleSubmission(ctx context.Context, payload json.RawMessage) (any, error) {
	var sub submissionPayload
	if err := json.Unmarshal(payload, &sub); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "decoding submission payload")
	}
	rec := sub.SubmissionRecord
	rec.Finalize(s.siteBase, s.now())

	if sub.Force {
		if err := s.orch.Push(ctx, &rec); err != nil {
			return nil, err
		}
	} else {
		if err := s.orch.HandleCandidate(ctx, &normalize.Result{Record: &rec, Accepted: sub.Accepted}); err != nil {
			return nil, err
		}
	}

	state, slug, _ := s.orch.Snapshot()
	return map[string]any{"state": state, "slug": slug}, nil
}

// settingsView is the get-settings response: the stored document with the
// token replaced by an authenticated flag.
type settingsView struct {
	Repo          storage.RepoSettings `json:"repo"`
	UploadEnabled bool                 `json:"uploadEnabled"`
	Statistics    storage.Statistics   `json:"statistics"`
	Auth          authView             `json:"auth"`
	PushState     push.State           `json:"pushState"`
}

type authView struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

func (s *Service) handleGetSettings(ctx context.Context) (any, error) {
	settings, err := s.store.LoadSettings()
	if err != nil {
		return nil, err
	}
	state, _, _ := s.orch.Snapshot()
	return settingsView{
		Repo:          settings.Repo,
		UploadEnabled: settings.UploadEnabled,
		Statistics:    settings.Statistics,
		Auth: authView{
			Authenticated: settings.Auth.Configured(),
			Username:      settings.Auth.Username,
		},
		PushState: state,
	}, nil
}

type saveRepoPayload struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

// handleSaveRepo validates and stores the target repository. When
// credentials are present the repository is created on demand so the first
// push cannot fail on a missing repo.
func (s *Service) handleSaveRepo(ctx context.Context, payload json.RawMessage) (any, error) {
	var req saveRepoPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "decoding save-repo payload")
	}
	req.Owner = strings.TrimSpace(req.Owner)
	req.Name = strings.TrimSpace(req.Name)
	if req.Owner == "" || req.Name == "" {
		return nil, gerrors.New(gerrors.ErrCodeInvalidInput, "repository owner and name are required").
			WithUserMessage("Enter both the repository owner and name.")
	}

	settings, err := s.store.LoadSettings()
	if err != nil {
		return nil, err
	}
	repo := github.RepoConfig{Owner: req.Owner, Name: req.Name, DefaultBranch: req.DefaultBranch}
	if settings.Auth.Configured() && s.committer != nil {
		if err := s.committer.EnsureRepository(ctx, settings.Auth.Token, repo); err != nil {
			return nil, err
		}
	}

	updated, err := s.store.UpdateSettings(func(doc *storage.Settings) {
		doc.Repo = storage.RepoSettings{
			Owner:         req.Owner,
			Name:          req.Name,
			DefaultBranch: req.DefaultBranch,
		}
	})
	if err != nil {
		return nil, err
	}
	s.publishSettingsChanged(ctx)
	s.logger.Info(logging.CategoryStorage, "repo_saved", "target repository saved", map[string]any{
		"owner": req.Owner,
		"name":  req.Name,
	})
	return map[string]any{"repo": updated.Repo}, nil
}

type toggleUploadPayload struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// handleToggleUpload flips automatic uploads, or sets them explicitly when
// the payload carries an enabled flag.
func (s *Service) handleToggleUpload(ctx context.Context, payload json.RawMessage) (any, error) {
	var req toggleUploadPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "decoding toggle-upload payload")
		}
	}
	updated, err := s.store.UpdateSettings(func(doc *storage.Settings) {
		if req.Enabled != nil {
			doc.UploadEnabled = *req.Enabled
		} else {
			doc.UploadEnabled = !doc.UploadEnabled
		}
	})
	if err != nil {
		return nil, err
	}
	s.publishSettingsChanged(ctx)
	return map[string]any{"uploadEnabled": updated.UploadEnabled}, nil
}

func (s *Service) handleLogout(ctx context.Context) (any, error) {
	_, err := s.store.UpdateSettings(func(doc *storage.Settings) {
		doc.Auth = storage.AuthSettings{}
	})
	if err != nil {
		return nil, err
	}
	s.publishSettingsChanged(ctx)
	s.logger.Info(logging.CategoryAuth, "logged_out", "credentials cleared", nil)
	return map[string]any{"authenticated": false}, nil
}

// handleStartAuth begins the device flow and hands the user-facing codes
// back to the UI surface.
func (s *Service) handleStartAuth(ctx context.Context) (any, error) {
	if s.oauth == nil {
		return nil, gerrors.New(gerrors.ErrCodeConfigInvalid, "no OAuth client configured")
	}
	auth, err := s.oauth.StartDeviceFlow(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pendingDevice = auth
	s.mu.Unlock()

	s.logger.Info(logging.CategoryAuth, "device_flow_started", "device flow started", map[string]any{
		"verificationUri": auth.VerificationURI,
	})
	return map[string]any{
		"deviceCode":      auth.DeviceCode,
		"userCode":        auth.UserCode,
		"verificationUri": auth.VerificationURI,
		"expiresIn":       auth.ExpiresIn,
		"interval":        auth.Interval,
	}, nil
}

type resumeAuthPayload struct {
	DeviceCode string `json:"deviceCode,omitempty"`
	Code       string `json:"code,omitempty"`
}

// handleResumeAuth completes authorization: one device-flow poll (the UI
// calls it at the suggested interval), or an authorization-code exchange
// when the payload carries a code.
func (s *Service) handleResumeAuth(ctx context.Context, payload json.RawMessage) (any, error) {
	if s.oauth == nil {
		return nil, gerrors.New(gerrors.ErrCodeConfigInvalid, "no OAuth client configured")
	}
	var req resumeAuthPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, gerrors.Wrap(err, gerrors.ErrCodeInvalidInput, "decoding resume-auth payload")
		}
	}

	var (
		token string
		err   error
	)
	switch {
	case req.Code != "":
		token, err = s.oauth.ExchangeCode(ctx, req.Code)
	default:
		deviceCode := req.DeviceCode
		if deviceCode == "" {
			s.mu.Lock()
			if s.pendingDevice != nil {
				deviceCode = s.pendingDevice.DeviceCode
			}
			s.mu.Unlock()
		}
		if deviceCode == "" {
			return nil, gerrors.New(gerrors.ErrCodeInvalidInput, "no device flow in progress").
				WithUserMessage("Start the sign-in flow first.")
		}
		token, err = s.oauth.PollDeviceToken(ctx, deviceCode)
	}
	if err != nil {
		if gerrors.CodeOf(err) == gerrors.ErrCodeAuthPending {
			return map[string]any{"pending": true}, nil
		}
		return nil, err
	}

	username := ""
	if s.users != nil {
		if username, err = s.users.GetUsername(ctx, token); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.UpdateSettings(func(doc *storage.Settings) {
		doc.Auth = storage.AuthSettings{Token: token, Username: username}
	}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.pendingDevice = nil
	s.mu.Unlock()
	s.publishSettingsChanged(ctx)
	s.logger.Info(logging.CategoryAuth, "authenticated", "credentials stored", map[string]any{
		"username": username,
	})
	return map[string]any{"authenticated": true, "username": username}, nil
}

func (s *Service) publishSettingsChanged(ctx context.Context) {
	if s.msgBus == nil {
		return
	}
	_ = s.msgBus.Publish(ctx, bus.SubjectSettingsChanged, []byte(`{}`))
}

func errorReply(err error) Reply {
	reply := Reply{OK: false, Error: err.Error(), Code: string(gerrors.CodeOf(err))}
	if ge, ok := err.(*gerrors.Error); ok && ge.UserMessage != "" {
		reply.Error = ge.UserMessage
	}
	return reply
}
