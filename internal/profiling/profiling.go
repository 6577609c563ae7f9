// Package profiling starts continuous profiling with Pyroscope.
package profiling

import (
	"fmt"
	"log/slog"

	"github.com/grafana/pyroscope-go"

	"github.com/rickgao/ticker-relay/internal/config"
	"github.com/rickgao/ticker-relay/internal/version"
)

// Start begins profiling when cfg.ServerAddress is set. The returned stop
// function is always safe to call.
func Start(cfg config.ProfilingConfig, role string, logger *slog.Logger) (func(), error) {
	if cfg.ServerAddress == "" {
		return func() {}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName + "." + role,
		ServerAddress:   cfg.ServerAddress,
		Tags: map[string]string{
			"role":    role,
			"version": version.Version,
		},
		Logger: slogAdapter{logger.With("component", "pyroscope")},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return func() {}, fmt.Errorf("start pyroscope: %w", err)
	}

	logger.Info("profiling enabled", "server", cfg.ServerAddress, "application", cfg.ApplicationName+"."+role)
	return func() { _ = profiler.Stop() }, nil
}

// slogAdapter satisfies pyroscope.Logger.
type slogAdapter struct {
	l *slog.Logger
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.l.Info(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.l.Debug(fmt.Sprintf(format, args...))
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.l.Error(fmt.Sprintf(format, args...))
}
