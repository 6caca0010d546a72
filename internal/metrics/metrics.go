package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	movementsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_movements_committed_total",
		Help: "Stock movements committed to the ledger.",
	}, []string{"direction", "type"})

	operationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_operations_rejected_total",
		Help: "Stock operations rejected by a validation rule, by error code.",
	}, []string{"code"})
)

func MovementCommitted(direction, movementType string) {
	movementsCommitted.WithLabelValues(direction, movementType).Inc()
}

func OperationRejected(code string) {
	operationsRejected.WithLabelValues(code).Inc()
}
