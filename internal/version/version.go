// Package version хранит сведения о сборке витрины.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Заполняются через -ldflags "-X github.com/simosh/storefront/internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build — сведения о текущем бинарнике.
type Build struct {
	Version string
	Commit  string
	Date    string
}

var (
	current  Build
	resolved sync.Once
)

// Current возвращает сведения о сборке. Если ldflags не заданы,
// commit и date берутся из VCS-меток go build.
func Current() Build {
	resolved.Do(func() {
		info, _ := debug.ReadBuildInfo()
		current = resolve(info)
	})
	return current
}

func resolve(info *debug.BuildInfo) Build {
	b := Build{Version: version, Commit: commit, Date: date}
	if info == nil {
		return b
	}
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && b.Commit == "unknown":
			b.Commit = s.Value
			if len(b.Commit) > 12 {
				b.Commit = b.Commit[:12]
			}
		case s.Key == "vcs.time" && b.Date == "unknown":
			b.Date = s.Value
		}
	}
	return b
}

func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// Fields возвращает поля для стартовой записи журнала.
func (b Build) Fields() log.Fields {
	return log.Fields{"version": b.Version, "commit": b.Commit, "build_date": b.Date}
}

// Collector отдаёт simosh_build_info со значением 1.
func (b Build) Collector() prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "simosh_build_info",
		Help:        "Build metadata of the running storefront binary.",
		ConstLabels: prometheus.Labels{"version": b.Version, "commit": b.Commit, "date": b.Date},
	}, func() float64 { return 1 })
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return Current().Version }
