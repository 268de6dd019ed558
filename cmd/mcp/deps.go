package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	_ "github.com/lib/pq"

	"github.com/mbd888/basemcp/internal/circuitbreaker"
	"github.com/mbd888/basemcp/internal/config"
	"github.com/mbd888/basemcp/internal/dao"
	"github.com/mbd888/basemcp/internal/dexscreener"
	"github.com/mbd888/basemcp/internal/ens"
	"github.com/mbd888/basemcp/internal/etherscan"
	"github.com/mbd888/basemcp/internal/gas"
	"github.com/mbd888/basemcp/internal/health"
	"github.com/mbd888/basemcp/internal/heurist"
	"github.com/mbd888/basemcp/internal/mcpserver"
	"github.com/mbd888/basemcp/internal/metrics"
	"github.com/mbd888/basemcp/internal/morpho"
	"github.com/mbd888/basemcp/internal/neynar"
	"github.com/mbd888/basemcp/internal/nft"
	"github.com/mbd888/basemcp/internal/prices"
	"github.com/mbd888/basemcp/internal/server"
	"github.com/mbd888/basemcp/internal/talent"
	"github.com/mbd888/basemcp/internal/txstatus"
	"github.com/mbd888/basemcp/internal/upstream"
	"github.com/mbd888/basemcp/internal/wallet"
	"github.com/mbd888/basemcp/migrations"
)

const (
	breakerThreshold = 5
	breakerOpenFor   = 30 * time.Second
	ethPriceTTL      = time.Minute
	ethPriceFallback = 3000
)

// runtime is everything the tools need, plus what must be closed on exit.
type runtime struct {
	deps    mcpserver.Deps
	checks  []server.Option
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// build wires every service from cfg. Services whose configuration is
// missing are left nil, which keeps their tools unregistered.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	rt := &runtime{}
	d := &rt.deps
	d.Logger = logger

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	rt.closers = append(rt.closers, rpc.Close)
	rt.checks = append(rt.checks, server.WithHealthCheck("rpc", health.RPCChecker("rpc", rpc)))

	d.Wallet, err = wallet.New(wallet.Config{
		ChainID:      cfg.ChainID,
		PrivateKey:   cfg.PrivateKey,
		SeedPhrase:   cfg.SeedPhrase,
		USDCContract: cfg.USDCContract,
	}, wallet.WithClient(rpc))
	if err != nil {
		rt.Close()
		return nil, err
	}
	if addr, err := d.Wallet.Address(); err == nil {
		logger.Info("wallet loaded", "address", addr.Hex(), "chain_id", cfg.ChainID)
	} else {
		logger.Warn("no signer configured, wallet tools are read-only")
	}

	breaker := circuitbreaker.New(breakerThreshold, breakerOpenFor)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker transition", "provider", key, "from", from.String(), "to", to.String())
	})
	rt.checks = append(rt.checks, server.WithHealthCheck("upstreams", health.BreakerChecker("upstreams", breaker)))
	opts := upstream.OptionsFromConfig(cfg, breaker)

	d.Prices = prices.NewService(
		upstream.New("binance", cfg.BinanceURL, opts),
		upstream.New("coingecko", cfg.CoinGeckoURL, opts),
		logger,
	)
	d.Dexscreener = dexscreener.New(upstream.New("dexscreener", cfg.DexscreenerURL, opts))
	d.Morpho = morpho.New(upstream.New("morpho", cfg.MorphoURL, opts))
	if cfg.EtherscanAPIKey != "" {
		d.Etherscan = etherscan.New(upstream.New("etherscan", cfg.EtherscanURL, opts), cfg.EtherscanAPIKey, cfg.ChainID)
	}
	if cfg.NeynarAPIKey != "" {
		d.Neynar = neynar.New(upstream.New("neynar", cfg.NeynarURL, opts), cfg.NeynarAPIKey)
	}
	if cfg.TalentAPIKey != "" {
		d.Talent = talent.New(upstream.New("talent", cfg.TalentURL, opts), cfg.TalentAPIKey)
	}

	d.TxStatus = txstatus.New(rpc, cfg.ChainID)
	d.Events = rpc
	d.Gas = gas.NewOptimizer(rpc, prices.NewOracle(d.Prices, ethPriceFallback, ethPriceTTL))
	d.NFT = nft.New(d.Wallet, common.HexToAddress(cfg.NFTContract))
	d.Heurist = heurist.New(d.Wallet)

	ensClients := map[int64]ens.Caller{}
	for chainID, url := range map[int64]string{1: cfg.EthMainnetRPCURL, 11155111: cfg.EthSepoliaRPCURL} {
		if url == "" {
			continue
		}
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			logger.Warn("ENS chain unavailable", "chain_id", chainID, "error", err)
			continue
		}
		rt.closers = append(rt.closers, c.Close)
		ensClients[chainID] = c
	}
	if len(ensClients) > 0 {
		d.ENS = ens.New(ensClients)
	}

	store, err := daoStore(ctx, cfg, logger, rt)
	if err != nil {
		rt.Close()
		return nil, err
	}
	d.DAO = dao.NewService(store)
	return rt, nil
}

// daoStore uses Postgres when DATABASE_URL is set and memory otherwise.
func daoStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, rt *runtime) (dao.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DAO registry is in-memory; set DATABASE_URL to persist it")
		return dao.NewMemoryStore(), nil
	}
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = db.Close() })
	rt.checks = append(rt.checks, server.WithHealthCheck("database", health.DBChecker("database", db)))

	statsCtx, cancel := context.WithCancel(context.Background())
	rt.closers = append(rt.closers, cancel)
	go metrics.StartDBStatsCollector(statsCtx, db, 15*time.Second)
	return dao.NewPostgresStore(db), nil
}

// openDB connects and applies pending migrations.
func openDB(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}
