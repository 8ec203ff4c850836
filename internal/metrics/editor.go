package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	editorOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voucherdesk",
			Subsystem: "editor",
			Name:      "operations_total",
			Help:      "编辑会话操作次数，按操作与结果区分。",
		},
		[]string{"operation", "result"},
	)

	templateActivationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "voucherdesk",
			Subsystem: "templates",
			Name:      "activations_total",
			Help:      "模板启用次数。",
		},
	)
)

// ObserveEditorOperation records one editor operation; result is ok, noop or error.
func ObserveEditorOperation(operation, result string) {
	editorOperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveTemplateActivation 记录一次模板启用。
func ObserveTemplateActivation() {
	templateActivationsTotal.Inc()
}
