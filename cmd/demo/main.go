package main

import (
	"context"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/rs/zerolog"

	"github.com/CosmWasm/actorvm"
	"github.com/CosmWasm/actorvm/types"
)

type config struct {
	DataDir       string `env:"ACTORVM_DATA_DIR" envDefault:"tmp"`
	DBBackend     string `env:"ACTORVM_DB_BACKEND" envDefault:"goleveldb"`
	CacheSize     int    `env:"ACTORVM_CACHE_SIZE" envDefault:"100"`
	BlockGasLimit uint64 `env:"ACTORVM_BLOCK_GAS_LIMIT" envDefault:"250000000000"`
	GasLimit      uint64 `env:"ACTORVM_GAS_LIMIT" envDefault:"10000000000"`
	Payload       string `env:"ACTORVM_PAYLOAD" envDefault:"ping"`
	LogLevel      string `env:"ACTORVM_LOG_LEVEL" envDefault:"info"`
}

var user = types.ProgramID{0x01}

// Stores the program given as the first argument, initializes it and sends
// it one message.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: demo <program.wasm>")
		os.Exit(2)
	}
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse env: %v\n", err)
		os.Exit(2)
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if err := run(context.Background(), cfg, os.Args[1], logger); err != nil {
		logger.Fatal().Err(err).Msg("demo failed")
	}
}

func run(ctx context.Context, cfg config, file string, logger zerolog.Logger) error {
	code, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	db, err := dbm.NewDB("actorvm", dbm.BackendType(cfg.DBBackend), cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	opts := actorvm.DefaultOptions()
	opts.CacheSize = cfg.CacheSize
	opts.BlockGasLimit = cfg.BlockGasLimit
	vm, err := actorvm.NewVM(ctx, db, opts, logger)
	if err != nil {
		return err
	}
	defer vm.Close(ctx)

	codeID, err := vm.StoreCode(code)
	if err != nil {
		return err
	}
	logger.Info().Str("code_id", codeID.String()).Msg("stored code")

	height, err := vm.Store().Height()
	if err != nil {
		return err
	}
	programID, _, err := vm.CreateProgram(codeID, []byte(fmt.Sprint(height)), actorvm.Message{Source: user, GasLimit: cfg.GasLimit})
	if err != nil {
		return err
	}
	if _, err := vm.RunBlock(ctx, types.BlockInfo{Height: height + 1}); err != nil {
		return err
	}

	msgID, err := vm.Send(actorvm.Message{Source: user, Destination: programID, Payload: []byte(cfg.Payload), GasLimit: cfg.GasLimit})
	if err != nil {
		return err
	}
	if _, err := vm.RunBlock(ctx, types.BlockInfo{Height: height + 2}); err != nil {
		return err
	}

	md, found, err := vm.Store().Outcome(msgID)
	if err != nil {
		return err
	}
	if !found {
		logger.Info().Str("message_id", msgID.String()).Msg("message is still pending")
		return nil
	}
	burned, err := vm.Store().Burned(msgID)
	if err != nil {
		return err
	}
	logger.Info().
		Str("program_id", programID.String()).
		Stringer("outcome", md.Outcome).
		Uint64("gas_burned", burned).
		Msg("message dispatched")

	mailbox, err := vm.Store().Mailbox(user)
	if err != nil {
		return err
	}
	for _, m := range mailbox {
		if m.Reply != nil && m.Reply.To == msgID {
			fmt.Printf("reply %d: %q\n", m.Reply.Code, m.Payload)
		}
	}
	return nil
}
