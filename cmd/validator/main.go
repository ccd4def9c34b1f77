// Command validator runs a single independent validator process: it
// registers with the store contract, catches the local database up on any
// request it hasn't validated yet, and then drives the propose/vote/
// finalize lifecycle for whatever blocks it gets assigned until told to
// stop.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/independant-validator/internal/artifact"
	"github.com/certen/independant-validator/internal/blockrepo"
	"github.com/certen/independant-validator/internal/chain"
	"github.com/certen/independant-validator/internal/config"
	"github.com/certen/independant-validator/internal/metrics"
	"github.com/certen/independant-validator/internal/queue"
	"github.com/certen/independant-validator/internal/store"
	"github.com/certen/independant-validator/internal/validator"
)

func main() {
	os.Exit(run())
}

// run wires the process together and blocks until shutdown, returning the
// process exit code: 0 on a clean shutdown, 1 on a fatal startup error.
func run() int {
	logger := log.New(os.Stdout, "[validator] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		logger.Printf("startup: %v", err)
		return 1
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.WalletPK, "0x"))
	if err != nil {
		logger.Printf("startup: invalid WALLET_PK: %v", err)
		return 1
	}
	self := crypto.PubkeyToAddress(privateKey.PublicKey)

	chainAdapter, err := chain.NewEthAdapter(cfg.EthNodeURL, cfg.ChainID, common.HexToAddress(cfg.StoreAddress), cfg.WalletPK)
	if err != nil {
		logger.Printf("startup: ethereum client: %v", err)
		return 1
	}

	if err := os.MkdirAll(cfg.FileStoragePath, 0o755); err != nil {
		logger.Printf("startup: file storage path: %v", err)
		return 1
	}

	db, err := store.Open(cfg.DatabaseURL, store.WithLogger(logger))
	if err != nil {
		logger.Printf("startup: store: %v", err)
		return 1
	}
	defer db.Close()
	store.SetBlockDecoder(blockrepo.DecodeBlock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.MigrateUp(ctx); err != nil {
		logger.Printf("startup: migrate: %v", err)
		return 1
	}

	art := artifact.New(chainAdapter, cfg.GfNodeURL, cfg.FileStoragePath, cfg.ChainID, logger)

	stake, err := chainAdapter.RecommendedStakeAmount(ctx)
	if err != nil {
		logger.Printf("startup: recommended stake amount: %v", err)
		return 1
	}

	mcfg := validator.Config{
		Self:                   self,
		StoreAddress:           common.HexToAddress(cfg.StoreAddress),
		ObjectStoreURL:         cfg.GfNodeURL,
		Version:                cfg.ValidatorVersion,
		RecommendedStakeAmount: stake,
		SyncRetryInterval:      cfg.SyncRetryInterval,
		SyncTimeout:            cfg.SyncTimeout,
		PollTimeout:            cfg.PollTimeout,
		ObserveTimeout:         cfg.ObserveTimeout,
		MaxLogsPerRequest:      cfg.MaxLogsPerRequest,
	}
	machine := validator.New(chainAdapter, db, art, mcfg, logger)

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	metricsSrv := &http.Server{Addr: ":9090", Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server: %v", err)
		}
	}()
	defer metricsSrv.Close()

	q := queue.New(machine.Handle, 256, logger)
	go reportQueueDepth(ctx, q)

	validator.PushLaunch(q)
	go q.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Printf("shutdown: signal received, draining queue")

	q.AsyncShutdown()
	cancel()
	q.Wait()
	return 0
}

func reportQueueDepth(ctx context.Context, q *queue.Queue) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.QueueParallel.Set(float64(q.ParallelCount()))
		}
	}
}
