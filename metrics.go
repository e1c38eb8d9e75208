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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tidemark/cascade/types"
)

var executionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cascade",
		Name:      "node_executions_total",
		Help:      "Completed user function runs per registered node.",
	},
	[]string{"node", "kind"},
)

func init() {
	prometheus.MustRegister(executionsTotal)
}

func observeExecution(name string, kind types.Kind) {
	executionsTotal.WithLabelValues(name, kind.String()).Inc()
}
