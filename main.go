package main

import (
	"strings"
	"time"

	"github.com/oksnap/oksnap/config"
	"github.com/oksnap/oksnap/routes"
	"github.com/oksnap/oksnap/services"
	"github.com/oksnap/oksnap/storage"
	"github.com/oksnap/oksnap/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	store := buildQuotaStore(&cfg)
	ledger := services.NewQuotaLedger(store, &cfg)
	vision := services.NewVision(&cfg)
	publisher := buildPublisher(&cfg)

	r := routes.SetupRouter(ledger, vision, publisher)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

// buildQuotaStore selects the quota backend by driver. A misconfigured or
// unreachable backend degrades to the in-memory store; quota accounting is
// not worth refusing to boot over.
func buildQuotaStore(cfg *config.AppConfig) storage.Store {
	switch strings.ToLower(cfg.StorageDriver) {
	case "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			utils.Sugar.Warn("supabase driver selected but credentials missing, using in-memory quota store")
			return storage.NewMemoryStore()
		}
		return storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey)
	case "mysql":
		st, err := storage.InitMySQL(*cfg)
		if err != nil {
			utils.Sugar.Warnf("mysql quota store unavailable, using in-memory: %v", err)
			return storage.NewMemoryStore()
		}
		return st
	case "postgres":
		st, err := storage.InitPostgres(*cfg)
		if err != nil {
			utils.Sugar.Warnf("postgres quota store unavailable, using in-memory: %v", err)
			return storage.NewMemoryStore()
		}
		return st
	default:
		utils.Sugar.Info("using in-memory quota store")
		return storage.NewMemoryStore()
	}
}

// buildPublisher wires the GitHub content store. Missing credentials yield a
// nil publisher; blog endpoints answer CONFIGURATION_ERROR per request.
func buildPublisher(cfg *config.AppConfig) *services.Publisher {
	if cfg.GitHubToken == "" || cfg.GitHubRepo == "" {
		utils.Sugar.Warn("GITHUB_TOKEN / GITHUB_REPO not set, blog publishing disabled")
		return nil
	}
	content, err := storage.NewGitHubStore(cfg.GitHubToken, cfg.GitHubRepo, cfg.GitHubBranch, cfg.PublicSiteURL, time.Duration(cfg.ContentTimeout)*time.Second)
	if err != nil {
		utils.Sugar.Warnf("github content store unavailable, blog publishing disabled: %v", err)
		return nil
	}
	return services.NewPublisher(content, cfg)
}
