package runtime

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/time/rate"

	"github.com/eclipse-score/inc-mw-com-sub004/config"
	"github.com/eclipse-score/inc-mw-com-sub004/messaging"
	"github.com/eclipse-score/inc-mw-com-sub004/quality"
	"github.com/eclipse-score/inc-mw-com-sub004/shm"
)

// Runtime is the process-wide singleton spec §4.7 describes: it holds,
// read-only after construction, everything a skeleton or proxy instance
// needs that isn't specific to one service instance. One process hosts
// exactly one Runtime, created on first use and torn down at process
// exit.
type Runtime struct {
	quality         quality.Type
	pid             int32
	uid             int
	shmSizeCalcMode shm.CalcMode
	processToken    uuid.UUID

	Messaging *messaging.Control
	Rollback  *RollbackRegistry
	Log       zerolog.Logger
	Metrics   Collector
}

// QualityLevel returns the process's own configured criticality class.
func (r *Runtime) QualityLevel() quality.Type { return r.quality }

// PID returns the OS process id Runtime was constructed under.
func (r *Runtime) PID() int32 { return r.pid }

// UID returns the OS user id Runtime was constructed under.
func (r *Runtime) UID() int { return r.uid }

// ShmSizeCalcMode returns the configured shared-memory sizing strategy
// (spec §5 "ShmSizeCalculationMode").
func (r *Runtime) ShmSizeCalcMode() shm.CalcMode { return r.shmSizeCalcMode }

// ProcessToken uniquely identifies this in-process Runtime instance,
// disambiguating multiple Runtimes constructed in the same OS process
// (only possible under the test-injection hook below).
func (r *Runtime) ProcessToken() uuid.UUID { return r.processToken }

func toCalcMode(mode config.ShmSizeCalcMode) shm.CalcMode {
	if mode == config.ShmSizeCalcModeSimulation {
		return shm.Simulation
	}
	return shm.Estimation
}

// tuneProcessLimits applies the teacher's container-aware process tuning
// (SPEC_FULL.md §10.2): GOMAXPROCS from the cgroup CPU quota and
// GOMEMLIMIT from the cgroup memory limit. Both are best-effort; a
// container-less host (e.g. a developer's desktop) simply leaves the Go
// defaults in place, so failures are logged, never fatal.
func tuneProcessLimits(log zerolog.Logger) {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug().Msgf(format, args...)
	})); err != nil {
		log.Warn().Err(err).Msg("automaxprocs: could not set GOMAXPROCS from cgroup, leaving default")
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithProvider(memlimit.FromCgroup),
	); err != nil {
		log.Warn().Err(err).Msg("automemlimit: could not set GOMEMLIMIT from cgroup, leaving default")
	}
}

// New constructs a Runtime from gcfg (spec §4.7 "created on first use").
// socketDir roots the messaging control plane's Unix sockets (one per
// peer pid, spec §4.4).
func New(gcfg config.GlobalConfiguration, socketDir string, log zerolog.Logger, metrics Collector) *Runtime {
	tuneProcessLimits(log)

	if metrics == nil {
		metrics = NoopCollector{}
	}

	queueSize := gcfg.MinNumMessagesRx
	if gcfg.MinNumMessagesTx > queueSize {
		queueSize = gcfg.MinNumMessagesTx
	}

	return &Runtime{
		quality:         gcfg.QualityLevel(),
		pid:             int32(os.Getpid()),
		uid:             os.Getuid(),
		shmSizeCalcMode: toCalcMode(gcfg.ShmSizeCalcMode),
		processToken:    uuid.New(),
		Messaging:       messaging.NewControl(gcfg.QualityLevel(), socketDir, queueSize),
		Rollback:        NewRollbackRegistry(),
		Log:             log,
		Metrics:         metrics,
	}
}

// StartRollbackSweeper runs r.Rollback.Sweep() on a timer until ctx is
// canceled, rate-limited so that recovery scanning never busy-spins if
// interval is driven down to something too aggressive for the host (spec
// §3 "partial restart" recovery scanning, SPEC_FULL.md §10.8). Returns a
// stop func identical to ctx's own cancellation, for callers that prefer
// an explicit handle over threading a context through.
func (r *Runtime) StartRollbackSweeper(ctx context.Context, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	go func() {
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			r.Rollback.Sweep()
		}
	}()

	return cancel
}

var (
	singletonOnce sync.Once
	singleton     *Runtime
	singletonMu   sync.Mutex
)

// Instance returns the process-wide Runtime, constructing it from init on
// the first call (spec §4.7 "created on first use"). Subsequent calls
// return the same instance until the process exits or SetForTest
// installs an override.
func Instance(init func() *Runtime) *Runtime {
	singletonMu.Lock()
	if override := singleton; override != nil {
		singletonMu.Unlock()
		return override
	}
	singletonMu.Unlock()

	singletonOnce.Do(func() {
		singletonMu.Lock()
		defer singletonMu.Unlock()
		if singleton == nil {
			singleton = init()
		}
	})
	return singleton
}

// SetForTest installs rt as the process-wide Runtime, bypassing Instance's
// lazy construction, and returns a restore func that puts back whatever
// was installed before (spec §4.7 "a test-only injection hook replaces it
// with a mock"). Intended for use from TestMain or individual test
// setup/teardown.
func SetForTest(rt *Runtime) (restore func()) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	previous := singleton
	singleton = rt
	return func() {
		singletonMu.Lock()
		defer singletonMu.Unlock()
		singleton = previous
	}
}
