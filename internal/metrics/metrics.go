package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_outbox_events_total",
			Help: "Outbox event lifecycle counter by stage",
		},
		[]string{"stage"}, // appended|published|retried|failed|pruned
	)

	SyncItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_sync_items_total",
			Help: "Priority sync queue lifecycle counter by stage and lane",
		},
		[]string{"stage", "lane"}, // enqueued|synced|retried|failed|expired
	)

	SyncPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldsync_sync_pending",
			Help: "Items waiting per priority lane",
		},
		[]string{"lane"},
	)

	TokenVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_token_verifications_total",
			Help: "Offline token verification outcomes",
		},
		[]string{"result"}, // valid|expired|revoked|invalid
	)

	MutationsReplayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_mutations_replayed_total",
			Help: "Device mutation replay outcomes",
		},
		[]string{"result"}, // synced|retried|backlogged
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		OutboxEventsTotal,
		SyncItemsTotal,
		SyncPending,
		TokenVerifications,
		MutationsReplayed,
	)
}
