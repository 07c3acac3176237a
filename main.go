package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/orcfax/fact-index/internal/alert"
	"github.com/orcfax/fact-index/internal/config"
	"github.com/orcfax/fact-index/internal/health"
	"github.com/orcfax/fact-index/internal/models"
	"github.com/orcfax/fact-index/internal/riskrating"
	"github.com/orcfax/fact-index/internal/scheduler"
	"github.com/orcfax/fact-index/internal/store/postgres"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://%s:%s@%s/fact_index", env.DBEmail, env.DBPassword, env.DBHost)
	log.Printf("Initializing Orcfax fact-statement indexer (build %s)...", BuildCommit)
	log.Printf("DB: %s", redactDatabaseURL(dbURL))
	log.Printf("NODE_ENV: %s", env.NodeEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := postgres.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer st.Close()

	networksPath := os.Getenv("NETWORKS_CONFIG_PATH")
	if networksPath == "" {
		networksPath = "config/networks.yaml"
	}
	if err := seedNetworks(ctx, st, env, networksPath); err != nil {
		log.Fatalf("Failed to seed networks: %v", err)
	}

	healthSrv := health.New(st, st, time.Duration(config.GetEnvInt64("MAX_TICK_AGE_MINUTES", 30))*time.Minute)
	alerter := alert.NewSink(env.DiscordWebhookURL, env.NodeEnv)

	sched := scheduler.New(
		st,
		time.Duration(config.GetEnvInt("TICK_INTERVAL_MINUTES", 10))*time.Minute,
		config.GetEnvFloat("CHAIN_INDEX_RATE_LIMIT", 10),
		healthSrv,
		alerter,
	)

	if xerberusURL := os.Getenv("XERBERUS_BASE_URL"); xerberusURL != "" {
		riskClient := riskrating.New(st, xerberusURL)
		go runPeriodic(ctx, time.Duration(config.GetEnvInt("RISK_RATING_INTERVAL_HOURS", 24))*time.Hour, func() {
			if err := riskClient.Run(ctx); err != nil {
				alerter.Error("[riskrating] run: %v", err)
			}
		})
	}

	apiPort := os.Getenv("PORT")
	if apiPort == "" {
		apiPort = "8080"
	}
	apiServer := &http.Server{Addr: ":" + apiPort, Handler: healthSrv.Router()}
	go func() {
		log.Printf("Health server listening on :%s", apiPort)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Health server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go sched.Run(ctx)

	<-sigChan
	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiServer.Shutdown(shutdownCtx)
	cancel()
}

func runPeriodic(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// seedNetworks ensures a store.Network row exists for every statically
// configured network (Mainnet, Preview), creating it on first boot.
func seedNetworks(ctx context.Context, st interface {
	ListNetworks(ctx context.Context) ([]models.Network, error)
	CreateNetwork(ctx context.Context, n models.Network) error
}, env config.Env, networksPath string) error {
	existing, err := st.ListNetworks(ctx)
	if err != nil {
		return err
	}
	haveByName := make(map[string]struct{}, len(existing))
	for _, n := range existing {
		haveByName[n.Name] = struct{}{}
	}

	overrides := map[string]string{
		"Mainnet": env.MainnetChainIndexBaseURL,
		"Preview": env.PreviewChainIndexBaseURL,
	}

	seeds, err := config.LoadNetworks(networksPath)
	if err != nil {
		return fmt.Errorf("load networks config: %w", err)
	}

	for _, seed := range seeds {
		if _, ok := haveByName[seed.Name]; ok {
			continue
		}
		baseURL := seed.ChainIndexBaseURL
		if override, ok := overrides[seed.Name]; ok && override != "" {
			baseURL = override
		}
		ignore := make(map[string]struct{}, len(seed.IgnorePolicies))
		for _, id := range seed.IgnorePolicies {
			ignore[id] = struct{}{}
		}
		net := models.Network{
			ID:                   seed.ID,
			Name:                 seed.Name,
			FactStatementPointer: seed.FactStatementPointer,
			ScriptToken:          seed.ScriptToken,
			ChainIndexBaseURL:    baseURL,
			ActiveFeedsURL:       seed.ActiveFeedsURL,
			ZeroTimeMs:           seed.ZeroTimeMs,
			ZeroSlot:             seed.ZeroSlot,
			SlotLengthMs:         seed.SlotLengthMs,
			IsEnabled:            true,
			IgnorePolicies:       ignore,
			TracksArchives:       seed.TracksArchives,
		}
		if err := st.CreateNetwork(ctx, net); err != nil {
			return fmt.Errorf("create network %s: %w", seed.Name, err)
		}
		log.Printf("Seeded network %s", seed.Name)
	}
	return nil
}

func redactDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" {
		if u.User != nil {
			user := u.User.Username()
			if user == "" {
				user = "user"
			}
			u.User = url.UserPassword(user, "****")
		}
		u.RawQuery = ""
		return u.String()
	}
	re := regexp.MustCompile(`(?i)(postgres(?:ql)?://[^:/?#]+):([^@]+)@`)
	if re.MatchString(raw) {
		return re.ReplaceAllString(raw, `$1:****@`)
	}
	return raw
}
