/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/x1a0/bcproxy/internal/buildinfo"
	"github.com/x1a0/bcproxy/internal/caps"
	"github.com/x1a0/bcproxy/internal/config"
	"github.com/x1a0/bcproxy/internal/log"
	"github.com/x1a0/bcproxy/internal/proxy"
	"github.com/x1a0/bcproxy/internal/sink"
)

const (
	defaultConfigLoc  = `/opt/bcproxy/etc/bcproxy.conf`
	defaultConfigDLoc = `/opt/bcproxy/etc/bcproxy.conf.d`
)

var (
	confLoc  = flag.String("config-file", defaultConfigLoc, "Location for configuration file")
	confdLoc = flag.String("config-overlays", defaultConfigDLoc, "Location for configuration overlay files")
	verbose  = flag.Bool("v", false, "Display verbose status updates to stdout")
	ver      = flag.Bool("version", false, "Print the version information and exit")
)

func main() {
	flag.Parse()
	if *ver {
		buildinfo.PrintVersion(os.Stdout)
		buildinfo.PrintOSInfo(os.Stdout)
		os.Exit(0)
	}

	cfg, err := config.Load(*confLoc, *confdLoc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	lg := log.NewDiscard()
	if cfg.LogFile != "" {
		lg, err = log.NewFile(cfg.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %q: %v\n", cfg.LogFile, err)
			os.Exit(1)
		}
	}
	if err := lg.SetLevelString(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "invalid Log-Level %q: %v\n", cfg.LogLevel, err)
		os.Exit(1)
	}
	if *verbose {
		lg.AddWriter(stdoutWriter{})
	}

	if _, portStr, err := net.SplitHostPort(cfg.ListenAddress); err == nil {
		if port, err := strconv.Atoi(portStr); err == nil && port > 0 && port < 1024 && !caps.HasNetBindService() {
			lg.Warn("missing capability", log.KV("capability", "NET_BIND_SERVICE"),
				log.KV("warning", "may not be able to bind to a privileged listen port"))
		}
	}

	var snk *sink.Sink
	if cfg.PersistenceDSN != "" {
		snk, err = sink.Open(cfg.PersistenceDSN, lg)
		if err != nil {
			lg.Fatal("failed to open persistence sink", log.KVErr(err))
		}
	}

	srv := proxy.New(cfg, lg, snk)
	l, err := srv.Listen()
	if err != nil {
		lg.Fatal("failed to bind listen address", log.KV("address", cfg.ListenAddress), log.KVErr(err))
	}

	go srv.Serve(l)
	lg.Info("bcproxy running", log.KV("listen", cfg.ListenAddress), log.KV("upstream", cfg.UpstreamAddress))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	lg.Info("shutting down", log.KV("active", srv.ConnCount()))
	l.Close()
	srv.CloseAll()

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		lg.Error("timed out waiting for connections to drain", log.KV("active", srv.ConnCount()))
	}

	if snk != nil {
		if err := snk.Close(); err != nil {
			lg.Error("failed to close persistence sink", log.KVErr(err))
		}
	}
	lg.Info("bcproxy exiting")
}

// stdoutWriter fans logged lines to stdout for -v without affecting
// the configured log file's writer lifecycle.
type stdoutWriter struct{}

func (stdoutWriter) Write(b []byte) (int, error) { return os.Stdout.Write(b) }
func (stdoutWriter) Close() error                { return nil }
