// Package bootstrap wires BlinkDB's components together with dig, the way
// the teacher's bootstrap package assembles its services container
// (SPEC_FULL.md §2/§6).
package bootstrap

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	"go.uber.org/dig"

	"blinkdb/internal/adapter"
	"blinkdb/internal/admin"
	"blinkdb/internal/config"
	"blinkdb/internal/engine"
)

// Run parses args, opens the engine, and serves the RESP adapter and the
// admin HTTP surface until one of them exits. It returns the exit code the
// caller should pass to os.Exit: 0 for --help or a clean shutdown, 1 for any
// startup failure (SPEC_FULL.md §6).
func Run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, "blinkdb:", err)
		return 1
	}

	container := dig.New()
	providers := []interface{}{
		func() config.Config { return cfg },
		newEngine,
		newAdapterListener,
		newAdapterServer,
		newAdminServer,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			fmt.Fprintln(os.Stderr, "blinkdb:", err)
			return 1
		}
	}

	err = container.Invoke(func(eng *engine.Engine, adapterSrv *adapter.Server, adminSrv *admin.Server) {
		defer eng.Close()

		errCh := make(chan error, 2)
		go func() { errCh <- adapterSrv.Serve() }()
		go func() { errCh <- adminSrv.ListenAndServe() }()

		log.Printf("blinkdb: listening on :%d (redis protocol), admin on %s", cfg.Port, adminAddr(cfg))
		if serveErr := <-errCh; serveErr != nil {
			log.Printf("blinkdb: server exited: %v", serveErr)
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "blinkdb:", err)
		return 1
	}
	return 0
}

func newEngine(cfg config.Config) (*engine.Engine, error) {
	return engine.Open(cfg.Dir, cfg.Engine)
}

func newAdapterListener(cfg config.Config) (net.Listener, error) {
	return net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
}

func newAdapterServer(eng *engine.Engine, ln net.Listener) *adapter.Server {
	return adapter.NewServer(eng, ln, log.New(os.Stderr, "[adapter] ", log.LstdFlags))
}

func newAdminServer(cfg config.Config, eng *engine.Engine) *admin.Server {
	return admin.NewServer(adminAddr(cfg), eng)
}

func adminAddr(cfg config.Config) string {
	return fmt.Sprintf(":%d", cfg.Port+1)
}
