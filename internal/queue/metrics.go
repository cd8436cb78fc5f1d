package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	TasksEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_enqueued_total",
			Help: "Tasks handed to the queue grouped by outcome",
		},
		[]string{"type", "result"},
	)
	TasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_processed_total",
			Help: "Total tasks processed grouped by status",
		},
		[]string{"type", "status"},
	)
)

func init() {
	prometheus.MustRegister(TasksEnqueuedTotal, TasksProcessedTotal)
}
