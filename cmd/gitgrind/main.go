package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gitgrind/gitgrind/pkg/bus"
	"github.com/gitgrind/gitgrind/pkg/commit"
	"github.com/gitgrind/gitgrind/pkg/config"
	"github.com/gitgrind/gitgrind/pkg/dedup"
	"github.com/gitgrind/gitgrind/pkg/enrich"
	"github.com/gitgrind/gitgrind/pkg/github"
	"github.com/gitgrind/gitgrind/pkg/intercept"
	"github.com/gitgrind/gitgrind/pkg/ipc"
	"github.com/gitgrind/gitgrind/pkg/logging"
	"github.com/gitgrind/gitgrind/pkg/normalize"
	"github.com/gitgrind/gitgrind/pkg/push"
	"github.com/gitgrind/gitgrind/pkg/service"
	"github.com/gitgrind/gitgrind/pkg/storage"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	flag.StringVar(&configPath, "config", "", "path to config.yaml (default: standard locations)")
	flag.Parse()

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
	}

	if cmd == "version" {
		fmt.Printf("gitgrind %s (%s, built %s)\n", version, gitCommit, buildDate)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = runServe(ctx, cfg)
	case "login":
		err = runLogin(ctx, cfg)
	default:
		err = fmt.Errorf("unknown command %q (expected serve, login, or version)", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// runServe wires the full pipeline and serves the local message endpoint
// until interrupted.
func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.NewLogger(cfg.Logging.Dir, ulid.Make().String())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening settings store: %w", err)
	}
	defer store.Close()

	msgBus, err := openBus(cfg)
	if err != nil {
		return fmt.Errorf("connecting message bus: %w", err)
	}
	defer msgBus.Close()

	ghClient := github.NewClient(cfg.GitHub.APIBaseURL, nil)
	oauth := github.NewOAuth(cfg.GitHub.OAuthBaseURL, cfg.GitHub.ClientID,
		cfg.GitHub.ClientSecret, cfg.GitHub.Scope, nil)

	engine := commit.NewEngine(ghClient, cfg.Commit.BasePath, logger)

	fetcher := enrich.NewFetcher(
		enrich.WithLimiter(rate.NewLimiter(rate.Every(cfg.Site.EnrichInterval), 1)),
		enrich.WithLogger(logger),
	)
	normalizer := normalize.New(cfg.Site.BaseURL, cfg.Site.ScanBudget, fetcher)

	orch := push.New(engine, store, dedup.NewStore(cfg.Commit.DedupTTL), msgBus, logger, push.Options{
		SuccessDelay: cfg.Push.SuccessResetDelay,
		PollInterval: cfg.Push.PollInterval,
		PollWindow:   cfg.Push.PollWindow,
	})

	svc := service.New(store, oauth, ghClient, engine, orch, normalizer, msgBus, logger, cfg.Site.BaseURL)
	if err := svc.Listen(ctx); err != nil {
		return fmt.Errorf("subscribing message handlers: %w", err)
	}

	server := ipc.NewServer(ipc.Config{BindAddress: cfg.IPC.BindAddress}, svc, msgBus, logger)

	observer := intercept.NewObserver(intercept.NewFilter(cfg.Site.URLFragments), func(cand *intercept.Candidate) {
		data, err := json.Marshal(cand)
		if err != nil {
			return
		}
		_ = msgBus.Publish(ctx, bus.SubjectCandidate, data)
	})
	server.SetInterceptionPort(observer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	fmt.Printf("gitgrind %s listening on %s\n", version, cfg.IPC.BindAddress)
	return g.Wait()
}

// runLogin walks the device authorization flow on the terminal and stores
// the resulting token.
func runLogin(ctx context.Context, cfg *config.Config) error {
	if cfg.GitHub.ClientID == "" {
		return fmt.Errorf("github.client_id is not configured (set GITGRIND_GITHUB_CLIENT_ID)")
	}

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening settings store: %w", err)
	}
	defer store.Close()

	oauth := github.NewOAuth(cfg.GitHub.OAuthBaseURL, cfg.GitHub.ClientID,
		cfg.GitHub.ClientSecret, cfg.GitHub.Scope, nil)

	auth, err := oauth.StartDeviceFlow(ctx)
	if err != nil {
		return fmt.Errorf("starting device flow: %w", err)
	}

	fmt.Printf("Open %s and enter code: %s\n", auth.VerificationURI, auth.UserCode)
	fmt.Println("Waiting for authorization...")

	token, err := oauth.WaitForDeviceToken(ctx, auth)
	if err != nil {
		return fmt.Errorf("waiting for authorization: %w", err)
	}

	client := github.NewClient(cfg.GitHub.APIBaseURL, nil)
	userCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	username, err := client.GetUsername(userCtx, token)
	if err != nil {
		return fmt.Errorf("resolving username: %w", err)
	}

	_, err = store.UpdateSettings(func(s *storage.Settings) {
		s.Auth = storage.AuthSettings{Token: token, Username: username}
	})
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	fmt.Printf("Authenticated as %s\n", username)
	return nil
}

func openBus(cfg *config.Config) (bus.MessageBus, error) {
	if cfg.Bus.Backend == "nats" {
		return bus.NewNATSBus(bus.Config{URL: cfg.Bus.NATSURL, Name: "gitgrind"})
	}
	return bus.NewMemoryBus(), nil
}
