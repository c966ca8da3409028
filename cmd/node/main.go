// Command node runs a tolarena ledger node: the sequencer, its JSON-RPC and
// websocket endpoints and the optional Redis event relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/tolelom/tolarena/config"
	"github.com/tolelom/tolarena/events"
	"github.com/tolelom/tolarena/indexer"
	"github.com/tolelom/tolarena/ledger"
	"github.com/tolelom/tolarena/relay"
	"github.com/tolelom/tolarena/rpc"
	"github.com/tolelom/tolarena/storage"
	"github.com/tolelom/tolarena/vm"
	"github.com/tolelom/tolarena/wallet"

	// Rule plugins and VM modules self-register in init().
	_ "github.com/tolelom/tolarena/game/ludo"
	_ "github.com/tolelom/tolarena/game/race"
	_ "github.com/tolelom/tolarena/vm/modules/economy"
	_ "github.com/tolelom/tolarena/vm/modules/session"
)

func main() {
	cfgPath := flag.StringP("config", "c", "config.yaml", "path to config file (.yaml, .yml or .json)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	keyPath := flag.StringP("key", "k", "owner.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new owner key and exit")
	issueToken := flag.String("issue-token", "", "print an RPC bearer token for the given subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of tokens printed by --issue-token")
	writeConfig := flag.Bool("write-config", false, "write the default config to --config and exit")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("env file: %v", err)
	}

	// ---- write config mode ----
	if *writeConfig {
		if err := config.Save(config.DefaultConfig(), *cfgPath); err != nil {
			log.Fatalf("write config: %v", err)
		}
		fmt.Printf("Default config written to %s\n", *cfgPath)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- generate key mode ----
	if *genKey {
		if cfg.KeystorePassword == "" {
			log.Println("WARNING: TOLARENA_PASSWORD not set, keystore will use an empty password")
		}
		w, err := wallet.Generate(cfg.ChainID)
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, cfg.KeystorePassword, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Address (set as genesis.owner): %s\n", w.Address())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	auth := rpc.NewAuthenticator(cfg.JWTSecret)

	// ---- issue token mode ----
	if *issueToken != "" {
		if auth == nil {
			log.Fatal("TOLARENA_JWT_SECRET is not set")
		}
		tok, err := auth.Issue(*issueToken, *tokenTTL)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	state := storage.NewStateDB(db)

	// ---- genesis (if fresh ledger) ----
	applied, err := config.ApplyGenesis(cfg, state)
	if err != nil {
		log.Fatalf("genesis: %v", err)
	}
	if applied {
		log.Printf("Genesis committed, state root %s", state.ComputeRoot())
	}

	// ---- events, indexer, sequencer ----
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	seq := ledger.New(cfg.ChainID, state, emitter)
	log.Printf("Sequencer ready (chain %s, tx types %v)", cfg.ChainID, vm.RegisteredTypes())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// ---- redis relay ----
	if cfg.Redis.Addr != "" {
		client, err := relay.Dial(ctx, relay.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		r := relay.New(client, cfg.Redis.Prefix, cfg.Redis.Buffer, emitter)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(ctx)
		}()
		log.Printf("Relaying events to redis %s under %q", cfg.Redis.Addr, cfg.Redis.Prefix)
	}

	// ---- RPC ----
	var hub *rpc.Hub
	if cfg.Stream {
		hub = rpc.NewHub(emitter)
	}
	rpcServer := rpc.NewServer(cfg.RPCAddr, rpc.NewHandler(seq, idx), hub, auth)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	log.Printf("RPC listening on %s", rpcServer.Addr())
	if auth != nil {
		log.Println("RPC bearer token authentication enabled")
	}

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// 1. Stop accepting transactions.
	if err := rpcServer.Stop(); err != nil {
		log.Printf("rpc stop: %v", err)
	}
	// 2. Drain the relay worker; deferred calls then close redis and the DB.
	cancel()
	wg.Wait()
	log.Println("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("Config file not found at %s, using defaults.", path)
		cfg = config.DefaultConfig()
		return cfg, config.ApplyEnv(cfg)
	}
	return cfg, err
}
