// Command ikeswand runs the IKE daemon: it loads a connection
// configuration, starts the XFRM kernel backend, and serves both the IKE
// UDP listeners and the whack operator control channel until signalled to
// stop.
//
// CLI flag parsing and the on-disk connection/certificate format are out
// of scope beyond the minimal YAML model internal/config
// already implements; this entrypoint only wires the already-built
// packages together the way original_source's programs/pluto/plutomain.c
// wires its own subsystems during startup.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ikeswand/ikeswand/internal/config"
	"github.com/ikeswand/ikeswand/internal/daemon"
	"github.com/ikeswand/ikeswand/internal/kernel"
	"github.com/ikeswand/ikeswand/internal/loglog"
)

func main() {
	configPath := flag.String("config", "/etc/ikeswand/ikeswand.yaml", "path to the connection configuration file")
	whackSocket := flag.String("whack-socket", "", "override the whack control-channel socket path (default: config's global.whack_socket)")
	logLevel := flag.String("log-level", "info", "logrus level: debug, info, warn, error")
	fakeKernel := flag.Bool("fake-kernel", false, "use the in-memory kernel backend instead of Linux XFRM (for non-Linux development)")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ikeswand: %v\n", err)
		os.Exit(2)
	}
	log := loglog.New(level)

	if err := run(log, *configPath, *whackSocket, *fakeKernel); err != nil {
		log.WithError(err).Fatal("ikeswand: fatal error")
	}
}

func run(log *logrus.Logger, configPath, whackSocketOverride string, useFakeKernel bool) error {
	global, conns, err := config.Load(configPath)
	if err != nil {
		return err
	}

	socket := global.WhackSocket
	if whackSocketOverride != "" {
		socket = whackSocketOverride
	}

	kern, err := newKernelBackend(log, useFakeKernel)
	if err != nil {
		return err
	}

	d, err := daemon.New(log, global, conns, kern, socket)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
