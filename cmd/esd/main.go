// Command esd is the easyshare server daemon: it registers the
// sharings listed in its config file and serves the control channel
// described in spec.md §3/§4. CLI flags set global options only;
// sharings cannot be given on the command line.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/easyshare-go/easyshare/internal/config"
	"github.com/easyshare-go/easyshare/internal/logger"
	"github.com/easyshare-go/easyshare/internal/server"
	"github.com/easyshare-go/easyshare/internal/sharing"
)

const appVersion = "1.0.0"

func main() {
	var (
		address      = flag.String("address", "", "address to bind (short -a)")
		configPath   = flag.String("config", "", "path to config file (short -c)")
		discoverPort = flag.Int("discover-port", 0, "discovery UDP port, 0 to use default (short -d)")
		rexecFlag    = flag.Bool("rexec", false, "enable remote execution (short -e)")
		name         = flag.String("name", "", "server name advertised to clients (short -n)")
		password     = flag.String("password", "", "server-wide password (short -P)")
		port         = flag.Int("port", 0, "control channel port, 0 to use default (short -p)")
		sslCert      = flag.String("ssl-cert", "", "TLS certificate path")
		sslPrivkey   = flag.String("ssl-privkey", "", "TLS private key path")
		trace        = flag.Bool("trace", false, "log raw RPC frames (short -t)")
		verbose      = flag.Bool("verbose", false, "raise log level to DEBUG (short -v)")
		noColor      = flag.Bool("no-color", false, "disable ANSI colors in log output")
		showVersion  = flag.Bool("version", false, "print version and exit (short -V)")
	)
	flag.StringVar(address, "a", "", "shorthand for -address")
	flag.IntVar(discoverPort, "d", 0, "shorthand for -discover-port")
	flag.BoolVar(rexecFlag, "e", false, "shorthand for -rexec")
	flag.StringVar(name, "n", "", "shorthand for -name")
	flag.StringVar(password, "P", "", "shorthand for -password")
	flag.IntVar(port, "p", 0, "shorthand for -port")
	flag.BoolVar(trace, "t", false, "shorthand for -trace")
	flag.BoolVar(verbose, "v", false, "shorthand for -verbose")
	flag.StringVar(configPath, "c", "", "shorthand for -config")
	flag.BoolVar(showVersion, "V", false, "shorthand for -version")
	flag.Parse()

	if *showVersion {
		fmt.Println("esd", appVersion)
		return
	}

	flags := map[string]any{}
	if *address != "" {
		flags["address"] = *address
	}
	if *discoverPort != 0 {
		flags["discover_port"] = *discoverPort
	}
	if *rexecFlag {
		flags["rexec"] = true
	}
	if *name != "" {
		flags["name"] = *name
	}
	if *password != "" {
		flags["password"] = *password
	}
	if *port != 0 {
		flags["port"] = *port
	}
	if *sslCert != "" {
		flags["ssl_cert"] = *sslCert
	}
	if *sslPrivkey != "" {
		flags["ssl_privkey"] = *sslPrivkey
	}
	if *trace {
		flags["trace"] = true
	}
	if *verbose {
		flags["verbose"] = true
	}
	if *noColor {
		flags["no_color"] = true
	}

	cfg, err := config.LoadServer(*configPath, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "esd:", err)
		os.Exit(1)
	}

	level := logger.LevelInfo
	if cfg.Verbose || cfg.Trace {
		level = logger.LevelDebug
	}
	log := logger.New("esd", level, logger.ParseFormat(cfg.LogFormat), io.Writer(os.Stdout))
	log.SetNoColor(cfg.NoColor)

	sharings := sharing.NewRegistry()
	for _, s := range cfg.Sharings {
		if _, err := sharings.Add(s.Name, s.Path, s.ReadOnly); err != nil {
			log.Error("register sharing %q: %v", s.Name, err)
			os.Exit(1)
		}
		log.Info("sharing %q -> %s (readonly=%v)", s.Name, s.Path, s.ReadOnly)
	}

	daemonOpts := server.Options{
		Address:      cfg.Address,
		Port:         cfg.Port,
		DiscoverPort: cfg.DiscoverPort,
		Name:         cfg.Name,
		Password:     cfg.Password,
		Rexec:        cfg.Rexec,
	}
	if cfg.IdleTimeoutS > 0 {
		daemonOpts.IdleTimeout = time.Duration(cfg.IdleTimeoutS) * time.Second
	}

	if cfg.SSL {
		tlsCfg, err := server.LoadTLSConfig(*configPath, cfg.SSLCert, cfg.SSLPrivkey)
		if err != nil {
			log.Error("configure TLS: %v", err)
			os.Exit(1)
		}
		daemonOpts.TLSConfig = tlsCfg
	}

	d := server.New(daemonOpts, sharings, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- d.Serve() }()

	select {
	case sig := <-sigCh:
		log.Info("received %s, shutting down", sig)
		d.Stop()
		<-done
	case err := <-done:
		if err != nil {
			log.Error("server error: %v", err)
			os.Exit(1)
		}
	}
}
