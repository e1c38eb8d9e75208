package cascade

/*
   Copyright 2024 Tidemark Labs

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/tidemark/cascade/log"
)

// usage samples process resource consumption around a graph run and
// reports CPU time, wall time, efficiency and peak RSS.
type usage struct {
	beginWall time.Time
	beginCPU  float64
}

func cpuSeconds() (secs float64, maxRSS float64) {
	var used unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &used); err != nil {
		return 0, 0
	}

	secs = float64(used.Utime.Sec) + float64(used.Utime.Usec)/1e6
	secs += float64(used.Stime.Sec) + float64(used.Stime.Usec)/1e6
	// Maxrss is reported in kilobytes on Linux.
	return secs, float64(used.Maxrss) / 1024
}

func newUsage() (u *usage) {
	u = &usage{}
	u.beginWall = time.Now()
	u.beginCPU, _ = cpuSeconds()
	return u
}

func (u *usage) report(logger log.Logger) {
	endCPU, maxRSS := cpuSeconds()
	cpuTime := endCPU - u.beginCPU
	realTime := time.Since(u.beginWall).Seconds()

	efficiency := 0.0
	if realTime > 0 {
		efficiency = cpuTime / realTime * 100
	}

	logger.Infow("graph resource usage",
		"cpu_seconds", cpuTime,
		"real_seconds", realTime,
		"cpu_efficiency_pct", efficiency,
		"max_rss_mb", maxRSS)
}
