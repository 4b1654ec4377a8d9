// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mfa-webauthn.
//
// go-mfa-webauthn is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-mfa-webauthn/internal/config"
	"github.com/jeremyhahn/go-mfa-webauthn/internal/server"
	"github.com/jeremyhahn/go-mfa-webauthn/pkg/logging"
	"github.com/jeremyhahn/go-mfa-webauthn/pkg/metrics"
	"github.com/jeremyhahn/go-mfa-webauthn/pkg/webauthn"
)

// serveCmd starts the WebAuthn relying party server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WebAuthn relying party server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	if envConfig := os.Getenv("WEBAUTHN_CONFIG"); envConfig != "" && configFile == "" {
		configFile = envConfig
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewSlog(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting webauthn-server",
		"version", Version,
		"config", configFile,
		"rp_id", cfg.WebAuthn.RPID)

	var jwtGen webauthn.JWTGenerator
	if cfg.JWT.PrivateKeyFile != "" {
		key, err := loadPrivateKey(cfg.JWT.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load JWT key: %w", err)
		}
		jwtGen, err = webauthn.NewDefaultJWTGenerator(&webauthn.JWTGeneratorConfig{
			PrivateKey: key,
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
			ExpiresIn:  cfg.JWT.ExpiresIn,
		})
		if err != nil {
			return fmt.Errorf("failed to create JWT generator: %w", err)
		}
	}

	// The bundled server persists nothing across restarts. Hosts that
	// need durable storage embed the service with their own stores.
	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config:          &cfg.WebAuthn,
		CredentialStore: webauthn.NewMemoryCredentialStore(),
		OptionsStore:    webauthn.NewMemoryOptionsStore(),
		JWTGenerator:    jwtGen,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create webauthn service: %w", err)
	}

	srv, err := server.New(cfg, svc, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	shutdownCtx := server.SetupSignalHandler()

	if cfg.Metrics.Enabled {
		metrics.StartResourceCollector(shutdownCtx, 30*time.Second)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(shutdownTimeout)
}

// loadPrivateKey reads a PEM-encoded private key (PKCS#8, SEC 1 EC, or
// PKCS#1 RSA).
func loadPrivateKey(path string) (crypto.PrivateKey, error) {
	// #nosec G304 - Key file path is provided by admin/user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unsupported private key format in %s", path)
}
