// Command es is the easyshare client: it can scan the LAN for
// servers, or run one filesystem/transfer command against a sharing
// and exit. Interactive line editing is out of scope (spec.md §1);
// this binary is a one-shot command runner.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/easyshare-go/easyshare/internal/client"
	"github.com/easyshare-go/easyshare/internal/config"
	"github.com/easyshare-go/easyshare/internal/discovery"
	"github.com/easyshare-go/easyshare/internal/logger"
	"github.com/easyshare-go/easyshare/pkg/protocol"
)

const appVersion = "1.0.0"

func main() {
	var (
		discoverPort = flag.Int("discover-port", 0, "discovery UDP port, 0 to use default (short -d)")
		discoverWait = flag.Int("discover-wait", 0, "discovery scan window in seconds, 0 to use default (short -w)")
		trace        = flag.Bool("trace", false, "log raw RPC frames (short -t)")
		verbose      = flag.Bool("verbose", false, "raise log level to DEBUG (short -v)")
		noColor      = flag.Bool("no-color", false, "disable ANSI colors in log output")
		showVersion  = flag.Bool("version", false, "print version and exit (short -V)")
		password     = flag.String("password", "", "password for auth, if the server requires one")
		useTLS       = flag.Bool("ssl", false, "connect over TLS")
	)
	flag.IntVar(discoverPort, "d", 0, "shorthand for -discover-port")
	flag.IntVar(discoverWait, "w", 0, "shorthand for -discover-wait")
	flag.BoolVar(trace, "t", false, "shorthand for -trace")
	flag.BoolVar(verbose, "v", false, "shorthand for -verbose")
	flag.BoolVar(showVersion, "V", false, "shorthand for -version")
	flag.Parse()

	if *showVersion {
		fmt.Println("es", appVersion)
		return
	}

	flags := map[string]any{}
	if *discoverPort != 0 {
		flags["discover_port"] = *discoverPort
	}
	if *discoverWait != 0 {
		flags["discover_wait"] = *discoverWait
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

	cfg, err := config.LoadClient("", flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "es:", err)
		os.Exit(1)
	}

	level := logger.LevelInfo
	if cfg.Verbose || cfg.Trace {
		level = logger.LevelDebug
	}
	log := logger.New("es", level, logger.ParseFormat(cfg.LogFormat), io.Writer(os.Stdout))
	log.SetNoColor(cfg.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var runErr error
	switch args[0] {
	case "scan":
		runErr = runScan(cfg, log)
	default:
		if len(args) < 3 {
			printUsage()
			os.Exit(1)
		}
		runErr = runCommand(args[0], args[1], args[2], args[3:], *password, *useTLS, log)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, "es:", runErr)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: es scan")
	fmt.Fprintln(os.Stderr, "       es <address> <sharing> <command> [args...]")
	fmt.Fprintln(os.Stderr, "commands: rls, rtree, rpwd, rcd, rmkdir, rmv, rcp, rrm, rfind, get, put, rexec, rshell")
}

func runScan(cfg *config.ClientConfig, log *logger.Logger) error {
	window := time.Duration(cfg.DiscoverWait) * time.Second
	if window <= 0 {
		window = discovery.DefaultScanWindow
	}
	port := cfg.DiscoverPort
	if port == 0 {
		port = discovery.DefaultPort
	}

	descriptors, err := discovery.Scan(port, window, log)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	for _, d := range descriptors {
		fmt.Printf("%s\t%s:%d\tauth=%v ssl=%v rexec=%v\n", d.Name, d.Address, d.Port, d.Auth, d.SSL, d.Rexec)
		for _, s := range d.Sharings {
			fmt.Printf("  - %s (%s%s)\n", s.Name, s.Kind, readOnlySuffix(s.ReadOnly))
		}
	}
	return nil
}

func readOnlySuffix(ro bool) string {
	if ro {
		return ", readonly"
	}
	return ""
}

func runCommand(addr, sharingName, cmd string, cmdArgs []string, password string, useTLS bool, log *logger.Logger) error {
	c, err := client.Dial(addr, useTLS, true, 5*time.Second)
	if err != nil {
		return err
	}
	defer c.Close()

	if password != "" {
		if err := c.Call(protocol.MethodAuth, protocol.AuthArgs{Password: password}, nil); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Call(protocol.MethodOpen, protocol.OpenArgs{Name: sharingName}, nil); err != nil {
		return fmt.Errorf("open %q: %w", sharingName, err)
	}
	defer c.Call(protocol.MethodClose, nil, nil)

	return dispatch(c, cmd, cmdArgs, useTLS)
}

func dispatch(c *client.Client, cmd string, args []string, useTLS bool) error {
	switch cmd {
	case "rpwd":
		var res protocol.RpwdResult
		if err := c.Call(protocol.MethodRpwd, nil, &res); err != nil {
			return err
		}
		fmt.Println(res.Path)
	case "rcd":
		if len(args) != 1 {
			return fmt.Errorf("rcd: expected one path argument")
		}
		return c.Call(protocol.MethodRcd, protocol.RcdArgs{Path: args[0]}, nil)
	case "rls":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		var res protocol.RlsResult
		if err := c.Call(protocol.MethodRls, protocol.RlsArgs{Path: path}, &res); err != nil {
			return err
		}
		for _, e := range res.Entries {
			fmt.Printf("%s\t%s\t%d\n", e.Kind, e.Name, e.Size)
		}
	case "rtree":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		var res protocol.RtreeResult
		if err := c.Call(protocol.MethodRtree, protocol.RtreeArgs{Path: path}, &res); err != nil {
			return err
		}
		for _, e := range res.Entries {
			fmt.Printf("%*s%s\n", e.Depth*2, "", e.Name)
		}
	case "rmkdir":
		if len(args) != 1 {
			return fmt.Errorf("rmkdir: expected one path argument")
		}
		return c.Call(protocol.MethodRmkdir, protocol.RmkdirArgs{Path: args[0]}, nil)
	case "rmv":
		return batchOp(c, protocol.MethodRmv, args)
	case "rcp":
		return batchOp(c, protocol.MethodRcp, args)
	case "rrm":
		if len(args) == 0 {
			return fmt.Errorf("rrm: expected at least one path")
		}
		var res protocol.BatchResult
		if err := c.Call(protocol.MethodRrm, protocol.RrmArgs{Paths: args}, &res); err != nil {
			return err
		}
		printBatch(res)
	case "rfind":
		if len(args) != 1 {
			return fmt.Errorf("rfind: expected one pattern argument")
		}
		var res protocol.RfindResult
		if err := c.Call(protocol.MethodRfind, protocol.RfindArgs{Pattern: args[0]}, &res); err != nil {
			return err
		}
		for _, e := range res.Entries {
			fmt.Println(e.Path)
		}
	case "get":
		return runGet(c, args, useTLS)
	case "put":
		return runPut(c, args, useTLS)
	case "rexec":
		return runRexec(c, args, useTLS, protocol.MethodRexec)
	case "rshell":
		return runRexec(c, nil, useTLS, protocol.MethodRshell)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func batchOp(c *client.Client, method string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("expected sources... dest")
	}
	sources, dest := args[:len(args)-1], args[len(args)-1]

	var res protocol.BatchResult
	var err error
	if method == protocol.MethodRmv {
		err = c.Call(method, protocol.RmvArgs{Sources: sources, Dest: dest}, &res)
	} else {
		err = c.Call(method, protocol.RcpArgs{Sources: sources, Dest: dest}, &res)
	}
	if err != nil {
		return err
	}
	printBatch(res)
	return nil
}

func printBatch(res protocol.BatchResult) {
	for _, r := range res.Results {
		if r.OK {
			fmt.Printf("ok\t%s\n", r.Path)
		} else {
			fmt.Printf("error\t%s\t%s\n", r.Path, r.Error)
		}
	}
}

func runGet(c *client.Client, args []string, useTLS bool) error {
	if len(args) == 0 {
		return fmt.Errorf("get: expected at least one path")
	}
	var handle protocol.TransferHandle
	if err := c.Call(protocol.MethodGet, protocol.GetArgs{Paths: args}, &handle); err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	outcome, err := client.Get(handle, cwd, useTLS, func(path string, done, total int64) {
		fmt.Printf("received %s (%d/%d bytes)\n", path, done, total)
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: files_ok=%d files_err=%d bytes_ok=%d\n", outcome.Outcome, outcome.FilesOK, outcome.FilesErr, outcome.BytesOK)
	return nil
}

func runPut(c *client.Client, args []string, useTLS bool) error {
	if len(args) == 0 {
		return fmt.Errorf("put: expected at least one local path")
	}
	entries, err := client.BuildLocalManifest(args)
	if err != nil {
		return err
	}

	var handle protocol.TransferHandle
	if err := c.Call(protocol.MethodPut, protocol.PutArgs{OverwritePolicy: protocol.OverwritePrompt}, &handle); err != nil {
		return err
	}

	ask := func(idx uint32, path string, size int64) error {
		fmt.Printf("%s exists on server, overwrite? [y/N] ", path)
		var answer string
		fmt.Scanln(&answer)
		decision := protocol.DecisionSkip
		if answer == "y" || answer == "Y" {
			decision = protocol.DecisionAccept
		}
		return c.Call(protocol.MethodPutDecision, protocol.PutDecisionArgs{
			TransferID: handle.TransferID, FileIdx: idx, Decision: decision,
		}, nil)
	}

	outcome, err := client.Put(handle, entries, useTLS, ask, func(path string, done, total int64) {
		fmt.Printf("sent %s (%d/%d bytes)\n", path, done, total)
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: files_ok=%d files_err=%d bytes_ok=%d\n", outcome.Outcome, outcome.FilesOK, outcome.FilesErr, outcome.BytesOK)
	return nil
}

func runRexec(c *client.Client, args []string, useTLS bool, method string) error {
	var res protocol.RexecResult
	if err := c.Call(method, protocol.RexecArgs{Cmd: args}, &res); err != nil {
		return err
	}
	code, err := client.Attach(res, useTLS)
	if err != nil {
		return err
	}
	os.Exit(code)
	return nil
}
