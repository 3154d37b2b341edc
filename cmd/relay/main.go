// Command relay runs the AirChainPay payment relay: it loads configuration,
// wires every internal component together, and serves the HTTP surface
// defined in internal/httpapi, shutting down gracefully on SIGINT/SIGTERM.
// Alongside the server it runs a background reconciler sweeping pending
// transactions for settled receipts; --reconcile-once runs that sweep as a
// standalone operational command instead of starting the server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/airchainpay/relay/internal/audit"
	"github.com/airchainpay/relay/internal/auth"
	"github.com/airchainpay/relay/internal/breaker"
	"github.com/airchainpay/relay/internal/config"
	"github.com/airchainpay/relay/internal/httpapi"
	"github.com/airchainpay/relay/internal/ipfilter"
	"github.com/airchainpay/relay/internal/metrics"
	"github.com/airchainpay/relay/internal/reconciler"
	"github.com/airchainpay/relay/internal/registry"
	"github.com/airchainpay/relay/internal/relayerr"
	"github.com/airchainpay/relay/internal/rpcpool"
	"github.com/airchainpay/relay/internal/services/ratelimit"
	"github.com/airchainpay/relay/internal/signer"
	"github.com/airchainpay/relay/internal/store"
	"github.com/airchainpay/relay/internal/vault"
)

// reconcileInterval is how often the background reconciler sweeps pending
// transactions for a settled on-chain receipt while the server is running.
const reconcileInterval = 30 * time.Second

const operatorDerivationPath = "m/44'/60'/0'/0/0"

// buildPool constructs one RPC client per registered chain. A chain whose
// client cannot be built is skipped with a warning, but a pool with no
// clients at all is a network initialization failure.
func buildPool(reg *registry.Registry) (*rpcpool.Pool, error) {
	pool := rpcpool.New()
	added := 0
	for _, chain := range reg.All() {
		if err := pool.Add(chain); err != nil {
			logrus.WithError(err).WithField("chain_id", chain.ChainID).Warn("skipping chain: RPC client could not be built")
			continue
		}
		added++
	}
	if added == 0 {
		return nil, relayerr.Network("ERR_NETWORK_INIT", "no RPC client could be built for any registered chain", nil)
	}
	return pool, nil
}

func main() {
	genSecrets := flag.Bool("gen-secrets", false, "print a one-shot bundle of production secrets and exit")
	reconcileOnce := flag.Bool("reconcile-once", false, "sweep pending transactions for settled receipts once, then exit")
	flag.Parse()

	if *genSecrets {
		printProductionSecrets()
		return
	}

	if *reconcileOnce {
		if err := runReconcileOnce(); err != nil {
			logrus.Error(err)
			os.Exit(exitCodeFor(err))
		}
		return
	}

	if err := run(); err != nil {
		logrus.Error(err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a startup failure to the process exit-code contract:
// 1 for configuration errors, 2 for storage errors, 3 for network
// initialization errors.
func exitCodeFor(err error) int {
	var re *relayerr.Error
	if errors.As(err, &re) {
		switch re.Kind {
		case relayerr.KindStorage:
			return 2
		case relayerr.KindNetwork:
			return 3
		}
	}
	return 1
}

// runReconcileOnce is the operational one-shot: open the store and RPC pool
// exactly as the server would, sweep every pending record once against its
// chain's receipt, report how many settled, and exit — no HTTP listener.
func runReconcileOnce() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg, err := registry.New()
	if err != nil {
		return fmt.Errorf("building chain registry: %w", err)
	}

	pool, err := buildPool(reg)
	if err != nil {
		return err
	}
	defer pool.CloseAll()

	txStore, err := store.New(cfg.StoragePath, 1000)
	if err != nil {
		return fmt.Errorf("opening transaction store: %w", err)
	}

	rc := reconciler.New(txStore, pool, nil, logrus.StandardLogger())
	settled, err := rc.ReconcileOnce(context.Background())
	if err != nil {
		return fmt.Errorf("reconcile sweep failed: %w", err)
	}
	logrus.WithField("settled", settled).Info("reconcile-once complete")
	return nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logrus.StandardLogger()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	reg, err := registry.New()
	if err != nil {
		return fmt.Errorf("building chain registry: %w", err)
	}

	pool, err := buildPool(reg)
	if err != nil {
		return err
	}

	txStore, err := store.New(cfg.StoragePath, 1000)
	if err != nil {
		return fmt.Errorf("opening transaction store: %w", err)
	}

	v := vault.New()
	handle, operatorAddr, err := v.GenerateFromMnemonic(cfg.OperatorMnemonic, "", operatorDerivationPath)
	if err != nil {
		return fmt.Errorf("loading operator key: %w", err)
	}
	log.WithField("operator_address", operatorAddr).Info("operator key loaded")

	relaySigner, err := signer.New(v, handle)
	if err != nil {
		return fmt.Errorf("binding operator signer: %w", err)
	}

	auditLogger, err := audit.New(cfg.AuditLogPath)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}

	guard := breaker.NewGuard(cfg.BreakerFailureThreshold, 2, time.Duration(cfg.BreakerCooldownSeconds)*time.Second, auditLogger)

	snapshot, err := metrics.LoadSnapshot(cfg.MetricsPath)
	if err != nil {
		return fmt.Errorf("loading metrics snapshot: %w", err)
	}
	recorder := metrics.New(prometheus.DefaultRegisterer, snapshot)

	ipFilter, err := ipfilter.New(cfg.IPAllowlist)
	if err != nil {
		return fmt.Errorf("building IP allow-list: %w", err)
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("building auth issuer: %w", err)
	}

	deps := &httpapi.Deps{
		Registry:    reg,
		Pool:        pool,
		Store:       txStore,
		Auth:        issuer,
		Guard:       guard,
		Metrics:     recorder,
		IPFilter:    ipFilter,
		Signer:      relaySigner,
		Logger:      log,
		AuthLimiter: ratelimit.NewRateLimiter(10, time.Minute),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.NewRouter(deps),
	}

	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	rc := reconciler.New(txStore, pool, guard, log)
	go rc.Run(reconcilerCtx, reconcileInterval)

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("relay listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		stopReconciler()
		return fmt.Errorf("server failed: %w", err)
	case s := <-sig:
		log.WithField("signal", s.String()).Info("shutting down")
	}
	stopReconciler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("graceful shutdown did not complete cleanly")
	}
	if err := pool.CloseAll(); err != nil {
		log.WithError(err).Warn("error closing RPC clients")
	}
	if err := metrics.SaveSnapshot(cfg.MetricsPath, recorder); err != nil {
		log.WithError(err).Warn("failed to persist metrics snapshot")
	}
	return nil
}

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// printProductionSecrets prints a one-shot bundle of freshly generated
// secrets, base64-encoded, to stdout only. Nothing here is ever written to
// disk; the operator captures the output and injects it as environment
// configuration.
func printProductionSecrets() {
	fmt.Println("Generating production secrets for AirChainPay Relay...")
	fmt.Println()

	jwtSecret, err := randomHex(64)
	if err != nil {
		logrus.Fatal(err)
	}
	apiKey, err := randomAlnum(32)
	if err != nil {
		logrus.Fatal(err)
	}
	dbPassword, err := randomAlnum(16)
	if err != nil {
		logrus.Fatal(err)
	}
	redisPassword, err := randomAlnum(16)
	if err != nil {
		logrus.Fatal(err)
	}
	encryptionKey, err := randomAlnum(32)
	if err != nil {
		logrus.Fatal(err)
	}

	secrets := []struct{ key, value string }{
		{"JWT_SECRET", jwtSecret},
		{"API_KEY", apiKey},
		{"DATABASE_PASSWORD", dbPassword},
		{"REDIS_PASSWORD", redisPassword},
		{"ENCRYPTION_KEY", encryptionKey},
	}

	fmt.Println("Successfully generated production secrets:")
	fmt.Println()
	for _, s := range secrets {
		fmt.Printf("  %s: %s\n", s.key, base64.StdEncoding.EncodeToString([]byte(s.value)))
	}
	fmt.Println()
	fmt.Println("Store these secrets securely in your production environment.")
	fmt.Println("Never commit these secrets to version control.")
}

func randomHex(numBytes int) (string, error) {
	buf := make([]byte, numBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func randomAlnum(length int) (string, error) {
	out := make([]byte, length)
	idx := make([]byte, length)
	if _, err := rand.Read(idx); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	for i, b := range idx {
		out[i] = secretAlphabet[int(b)%len(secretAlphabet)]
	}
	return string(out), nil
}
