package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/app"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/config"
	"github.com/sol-hydraulics/multisender/service/http"
	"github.com/sol-hydraulics/multisender/service/metrics"
	"github.com/sol-hydraulics/multisender/service/solana_helpers"
)

const version = "0.1.0"

var (
	sha1ver   string // sha1 revision used to build the program
	buildTime string // when the executable was built
)

func init() {
	log.SetLevel(log.InfoLevel)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config not provided")
	}

	logger := log.New()

	logger.Infof("Starting server (v%s)...", version)
	metrics.BuildInfo.WithLabelValues(version, sha1ver, buildTime).Set(1)

	// Distributor key, pays fees and holds the tokens to distribute
	if cfg.DistributorPrivateKey == "" {
		return fmt.Errorf("MULTISENDER_DISTRIBUTOR_PRIVATE_KEY is required")
	}
	signer, err := solana_helpers.NewKeypairSigner(cfg.DistributorPrivateKey)
	if err != nil {
		return err
	}

	// Solana client
	rpcClient := solana_helpers.NewClient(cfg.RPCEndpoint, cfg.RPCCommitment, cfg.SkipPreflight)
	defer func() {
		if err := rpcClient.Close(); err != nil {
			logger.Println(err)
		}
	}()

	// Database
	db, err := common.NewGormDB(cfg)
	if err != nil {
		return err
	}
	defer common.CloseGormDB(db)

	// Migrate app database
	if err := app.Migrate(db); err != nil {
		return err
	}

	// Application
	app, err := app.New(cfg, logger, db, rpcClient, signer, true)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.WithField("distributor", signer.PublicKey()).Info("Distributor account loaded")

	// HTTP server
	server := http.NewServer(cfg, logger, app)

	server.ListenAndServe()

	return nil
}
