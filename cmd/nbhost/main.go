// nbhost serves the simulated native plugins over the remote host protocol,
// so wrappers in another process (see nbctl) can be exercised end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/nativebridge/config"
	"github.com/chazu/nativebridge/remote"
	"github.com/chazu/nativebridge/sim"
)

var log = commonlog.GetLogger("nativebridge.nbhost")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.HostAddr, "Listen address")
	platform := flag.String("platform", cfg.Platform, "Platform reported to clients (ios, android, ...)")
	apps := flag.String("apps", "twitter://,com.twitter.android", "Comma-separated apps AppAvailability reports as installed")
	step := flag.Float64("compass-step", 1.5, "Degrees the simulated compass turns per reading")
	verbosity := flag.Int("v", cfg.Verbosity, "Log verbosity")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nbhost [options]\n\n")
		fmt.Fprintf(os.Stderr, "Serves simulated appAvailability, navigator.compass and sms bridge objects.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment:\n")
		fmt.Fprintf(os.Stderr, "  NATIVEBRIDGE_ALLOW / NATIVEBRIDGE_DENY  comma-separated refs to expose or hide\n")
		fmt.Fprintf(os.Stderr, "  NATIVEBRIDGE_HANDLE_TTL                 lifetime of orphaned handles\n")
	}
	flag.Parse()

	cfg.Verbosity = *verbosity
	cfg.ConfigureLogging()

	if err := run(cfg, *addr, *platform, splitList(*apps), *step); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, addr, platform string, apps []string, step float64) error {
	host := sim.NewHost(platform, sim.NewCompass(sim.Sweep(0, step)), apps...)
	defer host.Close()

	policy := remote.NewPermissivePolicy()
	if len(cfg.Allow) > 0 {
		policy = remote.NewRestrictedPolicy(cfg.Allow)
	}
	for _, ref := range cfg.Deny {
		policy.Deny(ref)
	}

	srv := remote.NewServer(host,
		remote.WithPolicy(policy),
		remote.WithHandleTTL(cfg.HandleTTL, cfg.SweepInterval()),
	)
	defer srv.Stop()

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("nbhost (%s) listening on %s\n", platform, l.Addr())
	fmt.Printf("  refs: %v\n", host.Refs())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx, l)
	})
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Infof("%d handles, %d compass watches, %d messages sent",
					srv.Handles().Len(), host.Compass.Watching(), len(host.SMS.Outbox()))
			case <-ctx.Done():
				return nil
			}
		}
	})
	return g.Wait()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
