// Command lola is the generic process bootstrap for a LoLa binding host
// (spec §6 "CLI"): it validates a service instance manifest, stands up
// the process-wide Runtime, and keeps the process alive for whatever
// generated skeleton/proxy code the embedding application drives.
//
// Actual OfferService/Attach calls are not made here: the per-event
// sample size and layout are compile-time properties of the IDL-generated
// service type (spec §9 "Polymorphism"), never present in the deployment
// manifest, so a generic host has nothing to offer on its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eclipse-score/inc-mw-com-sub004/config"
	"github.com/eclipse-score/inc-mw-com-sub004/runtime"
)

// rollbackSweepInterval throttles how often the process-wide rollback
// registry scans for stale transaction logs left by a crashed peer (spec
// §3 "partial restart").
const rollbackSweepInterval = 2 * time.Second

func main() {
	log := runtime.NewLogger(os.Getenv("LOLA_LOG_PRETTY") == "1", 0)

	manifestPath, err := config.ParseCLI(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("lola: command line")
	}

	gcfg, err := config.LoadGlobalConfiguration()
	if err != nil {
		log.Fatal().Err(err).Msg("lola: global configuration")
	}

	profile, err := config.LoadRuntimeProfile("runtime.toml")
	if err != nil {
		log.Fatal().Err(err).Msg("lola: runtime profile")
	}

	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		log.Fatal().Err(err).Msg("lola: service instance manifest")
	}
	log.Info().
		Int("service_id", int(manifest.InstanceID.ServiceID)).
		Uint32("instance_id", manifest.InstanceID.InstanceID).
		Int("events", len(manifest.Events)).
		Msg("lola: manifest loaded")

	socketDir := gcfg.ShmDir
	if socketDir == "" {
		socketDir = profile.ShmDirOverride
	}

	collector, err := runtime.NewPrometheusCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("lola: register metrics")
	}

	rt := runtime.Instance(func() *runtime.Runtime {
		return runtime.New(gcfg, socketDir, log, collector)
	})
	log.Info().
		Str("quality_level", rt.QualityLevel().String()).
		Int32("pid", rt.PID()).
		Str("process_token", rt.ProcessToken().String()).
		Msg("lola: runtime ready")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stopSweeper := rt.StartRollbackSweeper(ctx, rollbackSweepInterval)
	defer stopSweeper()

	<-ctx.Done()
	log.Info().Msg("lola: shutting down")
}
