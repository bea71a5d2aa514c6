// Command kirknode runs the long-running observer loop described by the
// engine's concurrency model: it watches a transport for new challenges
// and their follow-on events, replays each game sequence through
// pkg/sequence as events arrive, fires reward distribution on terminal
// states, and exports metrics.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/EthnTuttle/kirk/pkg/config"
	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/fraud"
	"github.com/EthnTuttle/kirk/pkg/game"
	"github.com/EthnTuttle/kirk/pkg/game/coinflip"
	"github.com/EthnTuttle/kirk/pkg/game/parity"
	"github.com/EthnTuttle/kirk/pkg/idempotency"
	"github.com/EthnTuttle/kirk/pkg/metrics"
	"github.com/EthnTuttle/kirk/pkg/mint"
	"github.com/EthnTuttle/kirk/pkg/reward"
	"github.com/EthnTuttle/kirk/pkg/sequence"
	"github.com/EthnTuttle/kirk/pkg/transport"
)

// node holds every tracked in-flight sequence, keyed by its root event id.
type node struct {
	mu        sync.Mutex
	sequences map[event.ID]*sequence.GameSequence

	registry  *game.Registry
	transport transport.Transport
	mint      mint.Mint
	idem      idempotency.Store
	rewarder  *reward.Distributor
	metrics   *metrics.Registry
	timeouts  sequence.TimeoutConfig

	logger *log.Logger
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)

	var configPath = flag.String("config", "", "path to a YAML config file (overrides environment variables when set)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("kirknode: load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("kirknode: invalid config: %v", err)
	}

	logger := log.New(log.Writer(), "[kirk/node] ", log.LstdFlags)
	logger.Printf("starting with transport=%s mint=%s idempotency=%s", cfg.TransportKind, cfg.MintKind, cfg.IdempotencyKind)

	registry := game.NewRegistry()
	registry.Register(coinflip.New())
	registry.Register(parity.New())

	bus, err := newTransport(cfg)
	if err != nil {
		log.Fatalf("kirknode: transport: %v", err)
	}
	defer bus.Close()

	m := newMint(cfg)

	idem, closeIdem, err := newIdempotencyStore(cfg)
	if err != nil {
		log.Fatalf("kirknode: idempotency store: %v", err)
	}
	defer closeIdem()

	signingKey, err := loadOrGenerateSigningKey(cfg.SigningKeyPath)
	if err != nil {
		log.Fatalf("kirknode: signing key: %v", err)
	}

	metricsReg := metrics.New(prometheus.DefaultRegisterer)
	rewarder := reward.New(signingKey, m, bus, idem, reward.WithLogger(log.New(log.Writer(), "[kirk/reward] ", log.LstdFlags)))

	n := &node{
		sequences: make(map[event.ID]*sequence.GameSequence),
		registry:  registry,
		transport: bus,
		mint:      m,
		idem:      idem,
		rewarder:  rewarder,
		metrics:   metricsReg,
		timeouts:  timeoutConfigFrom(cfg),
		logger:    logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go n.runObserver(ctx)
	go n.runTicker(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown error: %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newTransport(cfg *config.Config) (*transport.MemoryBus, error) {
	switch cfg.TransportKind {
	case "memory":
		return transport.NewMemoryBus()
	default:
		return nil, fmt.Errorf("unsupported transport kind %q", cfg.TransportKind)
	}
}

func newMint(cfg *config.Config) mint.Mint {
	switch cfg.MintKind {
	case "stub":
		return mint.NewStubMint()
	default:
		return mint.NewStubMint()
	}
}

func newIdempotencyStore(cfg *config.Config) (idempotency.Store, func(), error) {
	noop := func() {}
	switch cfg.IdempotencyKind {
	case "memory":
		return idempotency.NewMemoryStore(), noop, nil
	case "comet":
		db, err := dbm.NewDB("kirk-idempotency", dbm.GoLevelDBBackend, cfg.IdempotencyPath)
		if err != nil {
			return nil, noop, fmt.Errorf("open comet db: %w", err)
		}
		return idempotency.NewCometKVStore(db), func() { _ = db.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres: %w", err)
		}
		return idempotency.NewPostgresStore(db), func() { _ = db.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unsupported idempotency store kind %q", cfg.IdempotencyKind)
	}
}

func loadOrGenerateSigningKey(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
	seed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key %s must be exactly %d bytes, got %d", path, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func timeoutConfigFrom(cfg *config.Config) sequence.TimeoutConfig {
	return sequence.TimeoutConfig{
		ClockSkewTolerance: cfg.ClockSkewToleranceSec,
		CommitRevealWindow: cfg.CommitRevealWindowSec,
		MoveInactivity:     cfg.MoveInactivitySec,
		FinalWindow:        cfg.FinalWindowSec,
	}
}

// runObserver subscribes to every event on the bus and dispatches it to
// the sequence it belongs to, creating a new tracked sequence on each
// Challenge.
func (n *node) runObserver(ctx context.Context) {
	sub, err := n.transport.Subscribe(ctx, transport.Filter{})
	if err != nil {
		n.logger.Printf("subscribe failed: %v", err)
		return
	}
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Out():
			if !ok {
				return
			}
			n.handleEvent(ctx, e)
		}
	}
}

func (n *node) handleEvent(ctx context.Context, e event.Event) {
	if !n.transport.VerifySignature(e) {
		n.logger.Printf("dropping event %s with invalid signature", e.ID)
		return
	}

	if e.Kind == event.KindChallenge {
		n.startSequence(e)
		return
	}

	root, ok, err := event.ParentOf(e)
	if err != nil || !ok {
		return
	}

	n.mu.Lock()
	seq, tracked := n.sequences[root]
	if !tracked {
		// A Move chains to the previous event, which is the root only for
		// the first Move: find the sequence that already holds that event.
		for _, s := range n.sequences {
			for _, prior := range s.Events {
				if prior.ID == root {
					seq, tracked = s, true
				}
			}
		}
	}
	n.mu.Unlock()
	if !tracked {
		return
	}

	verdict, err := seq.Advance(e, time.Now().Unix(), n.timeouts)
	if err != nil {
		n.logger.Printf("sequence %s: event %s rejected: %v", seq.Root, e.ID, err)
		return
	}
	n.afterAdvance(ctx, seq, verdict)
}

func (n *node) startSequence(challenge event.Event) {
	content, err := event.Parse(challenge)
	if err != nil {
		n.logger.Printf("malformed challenge %s: %v", challenge.ID, err)
		return
	}
	cc, ok := content.(event.ChallengeContent)
	if !ok {
		return
	}
	g, err := n.registry.MustLookup(cc.GameType)
	if err != nil {
		n.logger.Printf("challenge %s: %v", challenge.ID, err)
		return
	}
	seq, err := sequence.New(challenge, g, sequence.WithMintChecker(n.mint))
	if err != nil {
		n.logger.Printf("challenge %s: cannot open sequence: %v", challenge.ID, err)
		return
	}

	n.mu.Lock()
	n.sequences[challenge.ID] = seq
	n.mu.Unlock()
	n.logger.Printf("opened sequence %s (game_type=%s)", challenge.ID, cc.GameType)
}

func (n *node) afterAdvance(ctx context.Context, seq *sequence.GameSequence, verdict *fraud.Verdict) {
	if verdict != nil {
		n.metrics.ObserveFraud(string(verdict.Class))
	}
	if seq.State != sequence.StateComplete && seq.State != sequence.StateForfeited {
		return
	}
	n.settle(ctx, seq)
}

func (n *node) settle(ctx context.Context, seq *sequence.GameSequence) {
	g, err := n.registry.MustLookup(seq.GameType)
	if err != nil {
		n.logger.Printf("sequence %s: cannot resolve game for settlement: %v", seq.Root, err)
		return
	}
	n.metrics.ObserveValidation(seq.State.String())

	_, err = reward.Distribute(ctx, n.rewarder, seq, g)
	switch {
	case err == idempotency.ErrAlreadyIssued:
		n.metrics.ObserveReward("already_issued")
	case err != nil:
		n.logger.Printf("sequence %s: reward distribution failed: %v", seq.Root, err)
		n.metrics.ObserveReward("failed")
	default:
		n.metrics.ObserveReward("issued")
	}
}

// runTicker periodically re-derives every tracked sequence's open
// deadlines and fires any that have elapsed, since the engine itself
// never blocks on a timer internally.
func (n *node) runTicker(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n.tickAll(ctx, now.Unix())
		}
	}
}

func (n *node) tickAll(ctx context.Context, now int64) {
	n.mu.Lock()
	roots := make([]event.ID, 0, len(n.sequences))
	for root := range n.sequences {
		roots = append(roots, root)
	}
	n.mu.Unlock()

	for _, root := range roots {
		n.mu.Lock()
		seq := n.sequences[root]
		n.mu.Unlock()
		if seq == nil {
			continue
		}
		verdict := seq.Tick(now, n.timeouts)
		if verdict != nil {
			n.metrics.ObserveFraud(string(verdict.Class))
		}
		if seq.State == sequence.StateComplete || seq.State == sequence.StateForfeited {
			n.settle(ctx, seq)
		}
	}
}
