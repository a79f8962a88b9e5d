// Package mainboilerplate contains shared boilerplate of the catalogd and
// catalogctl programs: configuration parsing, logging, diagnostics, and
// construction of storage from configuration. Each piece is narrowly scoped,
// so that programs use only what they need.
package mainboilerplate

import (
	_ "expvar" // Serves /debug/vars.
	"fmt"
	"net/http"
	_ "net/http/pprof" // Serves /debug/pprof.
	"os"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Version and BuildDate are populated at build time via -ldflags -X.
var (
	Version   = "development"
	BuildDate = "unknown"
)

// terminationLog is read by Kubernetes as the termination message of a
// failed container.
const terminationLog = "/dev/termination-log"

var notReady atomic.Bool

// DiagnosticsConfig configures serving of metrics and debug handlers.
type DiagnosticsConfig struct {
	Port string `long:"port" env:"PORT" default:"8080" description:"Port for serving metrics and debug handlers. Empty disables serving"`
}

// InitDiagnosticsAndRecover registers metrics and debug handlers with the
// default ServeMux:
//
//	/debug/ready    200 once the program is ready, else 503.
//	/debug/metrics  Prometheus metrics.
//	/debug/vars     expvar.
//	/debug/pprof/   pprof.
//
// The program is considered ready unless SetReady(false) is called.
// The returned closure should be deferred: it recovers a panic, writes it
// as the termination message, and re-panics.
func InitDiagnosticsAndRecover(cfg DiagnosticsConfig) func() {
	http.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		if notReady.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
	})
	http.Handle("/debug/metrics", promhttp.Handler())

	return func() {
		if r := recover(); r != nil {
			writeTerminationMessage(r)
			panic(r)
		}
	}
}

// SetReady sets the status reported by /debug/ready.
func SetReady(ready bool) { notReady.Store(!ready) }

func writeTerminationMessage(r interface{}) {
	var f, err = os.OpenFile(terminationLog, os.O_WRONLY, 0644)
	if err != nil {
		return // Not running under Kubernetes.
	}
	defer f.Close()
	_, _ = fmt.Fprintf(f, "%+v", r)
}

// DiagnosticsServer returns an *http.Server of the default ServeMux on the
// configured port, or nil if serving is disabled.
func (cfg DiagnosticsConfig) DiagnosticsServer() *http.Server {
	if cfg.Port == "" {
		return nil
	}
	return &http.Server{Addr: ":" + cfg.Port}
}

// Must panics if |err| is non-nil. |msg| is the panic message, and |extra|
// are alternating keys and values of additional log fields.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var fields = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		fields[fmt.Sprint(extra[i])] = extra[i+1]
	}
	log.WithFields(fields).Panic(msg)
}
