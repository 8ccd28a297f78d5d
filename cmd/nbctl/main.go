// nbctl calls the wrapped plugins against a remote native host (nbhost).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/nativebridge/async"
	"github.com/chazu/nativebridge/bridge"
	"github.com/chazu/nativebridge/config"
	"github.com/chazu/nativebridge/manifest"
	"github.com/chazu/nativebridge/plugin"
	"github.com/chazu/nativebridge/plugins/appavailability"
	"github.com/chazu/nativebridge/plugins/deviceorientation"
	"github.com/chazu/nativebridge/plugins/sms"
	"github.com/chazu/nativebridge/remote"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.HostAddr, "Native host address")
	manifestPath := flag.String("manifest", cfg.Manifest, "nativebridge.toml file or directory (default: search upward)")
	verbosity := flag.Int("v", cfg.Verbosity, "Log verbosity")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nbctl [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  plugins                       List wrappers and whether the host has them\n")
		fmt.Fprintf(os.Stderr, "  check <app>                   AppAvailability.check\n")
		fmt.Fprintf(os.Stderr, "  heading                       DeviceOrientation.getCurrentHeading\n")
		fmt.Fprintf(os.Stderr, "  watch [-n N] [-frequency ms]  DeviceOrientation.watchHeading\n")
		fmt.Fprintf(os.Stderr, "  sms -m <message> <number>...  SMS.send\n")
		fmt.Fprintf(os.Stderr, "  call <Class.method> [json]... Call a method declared in the manifest\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg.Verbosity = *verbosity
	cfg.Manifest = *manifestPath
	cfg.ConfigureLogging()

	client := remote.NewClient(http.DefaultClient, "http://"+*addr, remote.WithResolveTimeout(cfg.ResolveTimeout))
	bridge.Register(client)
	defer bridge.Unregister()

	loop := async.NewLoop()
	defer loop.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{ctx: ctx, cfg: cfg, opts: []plugin.Option{plugin.WithExecutor(loop)}}
	if err := c.run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	ctx  context.Context
	cfg  config.Config
	opts []plugin.Option
}

func (c *cli) run(cmd string, args []string) error {
	switch cmd {
	case "plugins":
		return c.plugins()
	case "check":
		return c.check(args)
	case "heading":
		return c.heading()
	case "watch":
		return c.watch(args)
	case "sms":
		return c.sms(args)
	case "call":
		return c.call(args)
	}
	return fmt.Errorf("unknown command %q (see nbctl -h)", cmd)
}

func (c *cli) plugins() error {
	classes := []*plugin.Class{
		appavailability.New(c.opts...).Class(),
		deviceorientation.New(c.opts...).Class(),
		sms.New(c.opts...).Class(),
	}
	if set, err := c.manifest(); err == nil {
		for _, name := range set.Classes() {
			classes = append(classes, set.Class(name))
		}
	}
	for _, cls := range classes {
		status := "missing"
		if cls.Installed() {
			status = "installed"
		}
		fmt.Printf("%-20s %-20s %s\n", cls.Name(), cls.Ref(), status)
	}
	return nil
}

func (c *cli) check(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: nbctl check <app>")
	}
	ok, err := appavailability.New(c.opts...).IsInstalled(args[0]).Await(c.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s installed: %t\n", args[0], ok)
	return nil
}

func (c *cli) heading() error {
	h, err := deviceorientation.New(c.opts...).GetCurrentHeading().Await(c.ctx)
	if err != nil {
		return err
	}
	printHeading(h)
	return nil
}

func (c *cli) watch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	n := fs.Int("n", 10, "Readings to print before unsubscribing (0 = until interrupted)")
	frequency := fs.Int("frequency", 250, "Milliseconds between readings")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	values, errc := deviceorientation.New(c.opts...).
		WatchHeading(&deviceorientation.CompassOptions{Frequency: *frequency}).
		Chan(ctx, 16)

	count := 0
	for h := range values {
		printHeading(h)
		count++
		if *n > 0 && count >= *n {
			cancel()
		}
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *cli) sms(args []string) error {
	fs := flag.NewFlagSet("sms", flag.ContinueOnError)
	message := fs.String("m", "", "Message text")
	intent := fs.Bool("intent", false, "Open the messaging app instead of sending (Android)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts := &sms.Options{ReplaceLineBreaks: true}
	if *intent {
		opts.Android.Intent = "INTENT"
	}
	v, err := sms.New(c.opts...).Send(fs.Args(), *message, opts).Await(c.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("sent: %v\n", v)
	return nil
}

func (c *cli) call(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: nbctl call <Class.method> [json args...]")
	}
	set, err := c.manifest()
	if err != nil {
		return err
	}
	m, ok := set.Method(args[0])
	if !ok {
		return fmt.Errorf("%s is not declared; have %s", args[0], strings.Join(set.Methods(), ", "))
	}

	callArgs := make([]any, len(args)-1)
	for i, raw := range args[1:] {
		if err := json.Unmarshal([]byte(raw), &callArgs[i]); err != nil {
			// Bare words are strings.
			callArgs[i] = raw
		}
	}

	if m.Descriptor().Mode == plugin.ModeObservable {
		values, errc := m.Observe(callArgs...).Chan(c.ctx, 16)
		for v := range values {
			printJSON(v)
		}
		if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	v, err := m.Call(callArgs...).Await(c.ctx)
	if err != nil {
		return err
	}
	printJSON(v)
	return nil
}

// manifest loads the configured manifest and builds its wrappers.
func (c *cli) manifest() (*manifest.Set, error) {
	var (
		mf  *manifest.Manifest
		err error
	)
	switch path := c.cfg.Manifest; {
	case path == "":
		wd, werr := os.Getwd()
		if werr != nil {
			return nil, werr
		}
		mf, err = manifest.FindAndLoad(wd)
	case filepath.Base(path) == manifest.FileName:
		mf, err = manifest.Load(filepath.Dir(path))
	default:
		mf, err = manifest.Load(path)
	}
	if err != nil {
		return nil, err
	}
	if mf == nil {
		return nil, fmt.Errorf("no %s found", manifest.FileName)
	}
	return mf.Build(c.opts...)
}

func printHeading(h deviceorientation.CompassHeading) {
	fmt.Printf("heading %6.2f° (true %6.2f°, ±%.1f) at %d\n",
		h.MagneticHeading, h.TrueHeading, h.HeadingAccuracy, h.Timestamp)
}

func printJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(data))
}
