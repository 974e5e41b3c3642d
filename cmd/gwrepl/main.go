package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/xiaonanln/gwrepl/components/host"
	"github.com/xiaonanln/gwrepl/engine/behaviors/attrs"
	"github.com/xiaonanln/gwrepl/engine/behaviors/proximity"
	"github.com/xiaonanln/gwrepl/engine/common"
	"github.com/xiaonanln/gwrepl/engine/config"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/entity"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"golang.org/x/sync/errgroup"
)

const playerAssetID common.AssetID = "player"

var (
	args struct {
		configFile string
		logLevel   string
		profile    string
	}
	signalChan = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.StringVar(&args.profile, "profile", "", "write a profile to the working directory: cpu, mem, block, mutex or trace")
	flag.Parse()
}

func setupLog() {
	cfg := config.GetLog()
	level := cfg.Level
	if args.logLevel != "" {
		level = args.logLevel
	}

	var outputs []string
	if cfg.Stderr {
		outputs = append(outputs, "stderr")
	}
	if cfg.File != "" {
		outputs = append(outputs, cfg.File)
	}
	if len(outputs) > 0 {
		gwlog.SetOutput(outputs)
	}
	gwlog.SetLevel(gwlog.ParseLevel(level))
	gwlog.SetSource("gwrepl")
}

func startProfile() interface{ Stop() } {
	var mode func(*profile.Profile)
	switch args.profile {
	case "":
		return nil
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfileAllocs
	case "block":
		mode = profile.BlockProfile
	case "mutex":
		mode = profile.MutexProfile
	case "trace":
		mode = profile.TraceProfile
	default:
		gwlog.Fatalf("unknown profile mode: %s", args.profile)
	}
	return profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook)
}

func setupSignals(cancel context.CancelFunc) {
	gwlog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signalChan
		gwlog.Infof("Received signal %s, terminating ...", sig)
		cancel()
	}()
}

func newPlayer(grid *proximity.Grid) *entity.NetworkIdentity {
	a := attrs.New()
	a.Set("hp", 100)
	identity := entity.NewNetworkIdentity("Player", a, proximity.NewChecker(grid))
	identity.SetAssetID(playerAssetID)
	identity.LocalPlayerAuthority = true
	return identity
}

func addPlayer(world *entity.World, grid *proximity.Grid, conn *entity.Connection) {
	if err := world.AddPlayerForConnection(conn, newPlayer(grid)); err != nil {
		gwlog.Errorf("add player for %s failed: %v", conn, err)
	}
}

func run(ctx context.Context) error {
	replCfg := config.GetReplication()
	hostCfg := config.GetHost()
	gwlog.Infof("Read config: \n%s", config.DumpPretty(config.Get()))

	world := entity.NewWorld(entity.OptionsFromConfig())
	world.OnClientAuthority = func(conn *entity.Connection, identity *entity.NetworkIdentity, granted bool) {
		gwlog.Infof("%s: client authority of %s granted=%v", identity, conn, granted)
	}
	grid := proximity.NewGrid(consts.DEFAULT_AOI_DISTANCE)

	hs := host.NewHostService(world, hostCfg, replCfg.TickInterval)
	hs.OnConnected = func(conn *entity.Connection) {
		addPlayer(world, grid, conn)
	}
	if world.HostClientActive() {
		world.Post(func() {
			local := world.LocalConnection()
			world.SetConnectionReady(local)
			addPlayer(world, grid, local)
		})
	}

	mux := http.NewServeMux()
	mux.Handle(hostCfg.WSPath, hs)
	mux.Handle("/debug/vars", expvar.Handler())
	srv := &http.Server{Addr: hostCfg.ListenAddr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hs.Run(gctx)
	})
	g.Go(func() error {
		gwlog.Infof("Listening on %s%s ...", hostCfg.ListenAddr, hostCfg.WSPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), consts.HTTP_SHUTDOWN_TIMEOUT)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	parseArgs()
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	setupLog()

	ctx, cancel := context.WithCancel(context.Background())
	setupSignals(cancel)

	p := startProfile()
	err := run(ctx)
	cancel()
	if p != nil {
		p.Stop()
	}

	if err != nil {
		gwlog.Errorf("gwrepl terminated with error: %+v", err)
		gwlog.Sync()
		os.Exit(1)
	}
	gwlog.Infof("gwrepl terminated gracefully.")
	gwlog.Sync()
}
