// Command sgkeyd loads a subscriber-group key distributor's
// configuration and runs its event loop until terminated. Grounded on
// the teacher's cmd/server/main.go: a cobra root command, a
// config-file flag, and SIGINT/SIGTERM/SIGHUP signal handling, trimmed
// of the mixnet server lifecycle (server.New/Shutdown/RotateLog) this
// distributor doesn't have.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	dctlog "github.com/turanzv/DCT/core/log"
	"github.com/turanzv/DCT/server/config"
	"github.com/turanzv/DCT/server/identity"
)

// cliConfig holds the command-line configuration.
type cliConfig struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	var cfg cliConfig

	cmd := &cobra.Command{
		Use:   "sgkeyd",
		Short: "subscriber-group key distributor daemon",
		Long: `sgkeyd loads a subscriber-group key distributor's configuration,
sets up logging, loads or generates this node's signing identity and
logs its thumbprint, then waits for a shutdown signal (SIGHUP reopens
the log file). It does not connect to a pub/sub fabric or run a
distributor itself.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "sgkeyd.toml",
		"path to the distributor configuration file (TOML format)")

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg cliConfig) error {
	dCfg, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %w", cfg.ConfigFile, err)
	}

	logBackend, err := dctlog.New(dCfg.Logging.File, dCfg.Logging.Level, dCfg.Logging.Disable)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logBackend.GetLogger("sgkeyd")
	log.Noticef("starting distributor %q for collection %q", dCfg.Distributor.Identifier, dCfg.Distributor.CollectionName)

	pub, _, err := identity.LoadOrGenerate(dCfg.Distributor.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load or generate signing identity: %w", err)
	}
	log.Noticef("signing identity thumbprint: %x", identity.Thumbprint(pub))

	// Wiring a live pub/sub fabric, certificate store, and election
	// sub-protocol is deployment-specific and out of this module's
	// scope (spec §1, §6): sgkeyd's job ends at loading and validating
	// configuration and handing it to whatever concrete
	// transport.SyncTransport/CertStore/Election the deployment
	// provides. Block here standing in for that deployment's run loop.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)

	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)

	for {
		select {
		case <-haltCh:
			log.Notice("received shutdown signal, exiting")
			return nil
		case <-rotateCh:
			if err := logBackend.Rotate(); err != nil {
				log.Errorf("failed to rotate log: %v", err)
			}
		}
	}
}
