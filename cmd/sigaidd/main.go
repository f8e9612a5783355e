// Copyright 2025 sigaid authors
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sigaid/core/authorityserver"
	"github.com/sigaid/core/internal/crypto"
	"github.com/sigaid/core/kv"
	"github.com/sigaid/core/lease"
	"github.com/sigaid/core/pkg/config"
	"github.com/sigaid/core/registry"
	"github.com/sigaid/core/statechain"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		listenAddr = flag.String("listen-addr", "", "HTTP listen address (overrides SIGAID_AUTHORITY_LISTEN_ADDR)")
		showHelp   = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	cfg, err := config.LoadAuthorityConfig()
	if err != nil {
		log.Fatal("failed to load configuration:", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("WARNING: %v", err)
		if err := cfg.ValidateForDevelopment(); err != nil {
			log.Fatal("failed minimal development validation:", err)
		}
		log.Printf("continuing with development-only validation")
	}

	store, err := kv.OpenGoLevelDB("authority", cfg.DataDir)
	if err != nil {
		log.Fatal("failed to open data store:", err)
	}
	defer store.Close()

	reg := registry.NewStore(store)
	if cfg.RegistrySeedPath != "" {
		if err := seedRegistry(reg, cfg.RegistrySeedPath); err != nil {
			log.Fatal("failed to seed registry:", err)
		}
	}

	tokenKey, err := loadOrCreatePasetoKey(cfg.PasetoKeyPath)
	if err != nil {
		log.Fatal("failed to load PASETO signing key:", err)
	}

	leases := lease.NewManager(store, reg, cfg.ClockSkew, tokenKey)
	chain := statechain.NewStore(store)

	logger := log.New(log.Writer(), "[Authority] ", log.LstdFlags)
	srv := authorityserver.New(reg, leases, chain, cfg.DefaultMaxStateAge, logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Mux(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
	logger.Printf("stopped")
}

// seedRegistry preloads the agents named in a YAML registry seed file.
// Agents already present in the store (ErrAlreadyRegistered) are skipped,
// so re-running the daemon against an existing data directory is a no-op.
func seedRegistry(reg *registry.Store, path string) error {
	seed, err := config.LoadRegistrySeed(path)
	if err != nil {
		return err
	}
	for _, a := range seed.Agents {
		pub, err := base64.StdEncoding.DecodeString(a.PublicKeyBase64)
		if err != nil {
			return fmt.Errorf("registry seed agent %s: bad public_key_base64: %w", a.AgentID, err)
		}
		if _, err := reg.Register(a.AgentID, ed25519.PublicKey(pub), a.Metadata); err != nil {
			if err == registry.ErrAlreadyRegistered {
				continue
			}
			return fmt.Errorf("registry seed agent %s: %w", a.AgentID, err)
		}
		if a.ReputationScore != 0 {
			if err := reg.AdjustReputation(a.AgentID, a.ReputationScore); err != nil {
				return fmt.Errorf("registry seed agent %s: set reputation: %w", a.AgentID, err)
			}
		}
	}
	return nil
}

// loadOrCreatePasetoKey reads the Authority's long-lived PASETO v4.local key
// from path, generating and persisting a fresh one on first run. The key
// file is written with owner-only permissions; losing it invalidates every
// lease token currently in flight.
func loadOrCreatePasetoKey(path string) ([lease.TokenKeySize]byte, error) {
	var key [lease.TokenKeySize]byte
	if path == "" {
		return key, fmt.Errorf("paseto key path is empty")
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != lease.TokenKeySize {
			return key, fmt.Errorf("paseto key file %s: expected %d bytes, got %d", path, lease.TokenKeySize, len(raw))
		}
		copy(key[:], raw)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return key, fmt.Errorf("read paseto key file %s: %w", path, err)
	}

	fresh, err := crypto.RandomBytes(lease.TokenKeySize)
	if err != nil {
		return key, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return key, fmt.Errorf("create paseto key directory: %w", err)
	}
	if err := os.WriteFile(path, fresh, 0o600); err != nil {
		return key, fmt.Errorf("write paseto key file %s: %w", path, err)
	}
	copy(key[:], fresh)
	log.Printf("[Authority] generated a new PASETO signing key at %s", path)
	return key, nil
}

func printHelp() {
	fmt.Println("sigaidd - the sigaid Authority daemon")
	fmt.Println()
	fmt.Println("Usage: sigaidd [flags]")
	fmt.Println()
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  SIGAID_AUTHORITY_LISTEN_ADDR       HTTP listen address (default 0.0.0.0:8443)")
	fmt.Println("  SIGAID_AUTHORITY_DATA_DIR          LevelDB data directory (default ./data)")
	fmt.Println("  SIGAID_AUTHORITY_PASETO_KEY_PATH   Path to the PASETO signing key")
	fmt.Println("  SIGAID_AUTHORITY_REGISTRY_SEED     Optional YAML registry seed file")
	fmt.Println("  SIGAID_AUTHORITY_CLOCK_SKEW         Allowed client clock skew (default 30s)")
}
