package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSteps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jimi_steps_total",
		Help: "Agent loop steps executed.",
	})

	metricToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jimi_tool_executions_total",
		Help: "Tool executions by tool name and status.",
	}, []string{"tool", "status"})

	metricTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jimi_tokens_total",
		Help: "Provider-reported tokens by kind.",
	}, []string{"kind"})

	metricCompactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jimi_compactions_total",
		Help: "Context compactions performed.",
	})
)
