package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

var versionInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ebook_version_info",
		Help: "Always 1; labels carry the running binary's version.",
	},
	[]string{"version", "commit", "go"},
)

func init() { register(versionInfo) }

func SetBuildInfo(version, commit string) {
	versionInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
