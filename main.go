/*
Asteroids renders a field of procedurally generated asteroids and measures
how fast the renderer keeps frames in flight. See settings.toml for the
configuration and -help for the command line overrides.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/testbed"
)

func main() {
	if err := run(); err != nil {
		core.LogError("%+v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := engine.ParseCommandLine(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return err
	}

	tb := testbed.NewTestGame()
	e, err := engine.New(cfg, tb.Game)
	if err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	// the frame loop notices the quit event between frames
	go func() {
		if _, ok := <-sigCh; ok {
			e.Quit()
		}
	}()

	if err := e.Initialize(); err != nil {
		return firstError(err, e.Shutdown())
	}
	runErr := e.Run()
	return firstError(runErr, e.Shutdown())
}

// firstError keeps the run error and only logs a shutdown failure that
// follows it.
func firstError(runErr, shutdownErr error) error {
	if runErr == nil {
		return shutdownErr
	}
	if shutdownErr != nil {
		core.LogError("shutdown: %v", shutdownErr)
	}
	return runErr
}
