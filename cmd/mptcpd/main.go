// Command mptcpd runs a standalone MPTCP connection engine: it accepts
// plain TCP connections, negotiates MPTCP per-connection, and aggregates
// additional subflows discovered via ADD_ADDR/JOIN into one meta-stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"net/http/pprof"

	"github.com/hashicorp/go-envparse"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/r2northstar/mptcpd/pkg/mptcp"
	"github.com/r2northstar/mptcpd/pkg/netenum"
)

var opt struct {
	Help bool
}

func init() {
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()

	if pflag.NArg() > 1 || opt.Help {
		fmt.Printf("usage: %s [options] [env_file]\n\noptions:\n%s\nnote: if env_file is provided, config from the environment is ignored\n", os.Args[0], pflag.CommandLine.FlagUsages())
		if opt.Help {
			os.Exit(2)
		}
		os.Exit(0)
	}

	var e []string
	if pflag.NArg() == 0 {
		e = os.Environ()
	} else {
		if x, err := readEnv(pflag.Arg(0)); err == nil {
			e = x
		} else {
			fmt.Fprintf(os.Stderr, "error: read env file: %v\n", err)
			os.Exit(1)
		}
		if v, ok := os.LookupEnv("NOTIFY_SOCKET"); ok {
			e = append(e, "NOTIFY_SOCKET="+v)
		}
	}

	var c mptcp.Config
	if err := c.UnmarshalEnv(e, false); err != nil {
		fmt.Fprintf(os.Stderr, "error: parse config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(c)

	dbg := http.NewServeMux()
	if dbgAddr, _ := getEnvList("INSECURE_DEBUG_SERVER_ADDR", e, os.Environ()); dbgAddr != "" {
		go func() {
			log.Warn().Str("addr", dbgAddr).Msg("running insecure debug server")
			if err := http.ListenAndServe(dbgAddr, accessLog(log, dbg)); err != nil {
				log.Warn().Err(err).Msg("failed to start debug server")
			}
		}()
	}

	dbg.HandleFunc("/debug/pprof/", pprof.Index)
	dbg.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	dbg.HandleFunc("/debug/pprof/profile", pprof.Profile)
	dbg.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	dbg.HandleFunc("/debug/pprof/trace", pprof.Trace)

	enum := &netenum.RealEnumerator{}
	eng := mptcp.NewEngine(&c, log, enum)

	dbg.Handle("/debug/metrics", gzipHandler(c.MetricsSecret, func(w http.ResponseWriter, r *http.Request) {
		eng.Metrics().WritePrometheus(w)
	}))
	dbg.Handle("/debug/mpcb", gzipHandler(c.MetricsSecret, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "active connections: %d\n", eng.ConnCount())
	}))
	dbg.Handle("/debug/buffers", gzipHandler(c.MetricsSecret, func(w http.ResponseWriter, r *http.Request) {
		eng.WriteBufferAccounting(w)
	}))

	ln, err := eng.ListenAndServe(c.Addr)
	if err != nil {
		log.Error().Err(err).Msg("failed to listen")
		os.Exit(1)
	}
	_ = ln

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hch := make(chan os.Signal, 1)
	signal.Notify(hch, syscall.SIGHUP)

	go func() {
		for range hch {
			log.Info().Msg("got SIGHUP")
			var c2 mptcp.Config
			if err := c2.UnmarshalEnv(os.Environ(), false); err != nil {
				log.Error().Err(err).Msg("reload: parse config")
				continue
			}
			eng.HandleSIGHUP(&c2)
		}
	}()

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("run engine")
		os.Exit(1)
	}
}

// accessLog wraps h with the same request-id/access-log middleware stack
// the teacher's HTTP server installs ahead of its own handlers
// (pkg/atlas/server.go's hlog.RequestIDHandler + hlog.AccessHandler +
// hlog.NewHandler chain), applied here to the debug mux.
func accessLog(log zerolog.Logger, h http.Handler) http.Handler {
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		e := log.Info()
		if rid, ok := hlog.IDFromRequest(r); ok {
			e = e.Stringer("rid", rid)
		}
		e.Str("request_method", r.Method).
			Stringer("request_uri", r.URL).
			Int("response_status", status).
			Int("response_size", size).
			Dur("response_duration", duration).
			Msg("handle debug request")
	})(h)
	h = hlog.RequestIDHandler("rid", "X-Request-Id")(h)
	return hlog.NewHandler(log.With().Str("component", "debug").Logger())(h)
}

func newLogger(c mptcp.Config) zerolog.Logger {
	zerolog.SetGlobalLevel(c.LogLevel)
	var w io.Writer = os.Stdout
	if c.LogStdout && c.LogStdoutPretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	} else if !c.LogStdout {
		w = io.Discard
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// gzipHandler wraps fn with a shared-secret check and gzip compression for
// the debug endpoints, matching the way the teacher compresses its own
// debug dumps.
func gzipHandler(secret string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && r.URL.Query().Get("secret") != secret {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			fn(w, r)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		fn(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer *gzip.Writer
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

func getEnvList(k string, e ...[]string) (string, bool) {
	for _, l := range e {
		for _, x := range l {
			if xk, xv, ok := strings.Cut(x, "="); ok && xk == k {
				return xv, true
			}
		}
	}
	return "", false
}

func readEnv(name string) ([]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := envparse.Parse(f)
	if err != nil {
		return nil, err
	}

	var r []string
	for k, v := range m {
		r = append(r, k+"="+v)
	}
	return r, nil
}
