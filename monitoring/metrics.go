package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_length_total",
			Help: "Current active queue length per shop",
		},
		[]string{"shop_id"},
	)

	queueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total queue operations",
		},
		[]string{"operation", "shop_id", "status"},
	)

	notificationDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatch_total",
			Help: "Fanout job outcomes per channel",
		},
		[]string{"channel", "outcome"},
	)

	activeShops = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_shops_total",
			Help: "Shops currently marked open",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of goroutines",
		},
	)
)

// TrackQueueOperation counts one engine operation outcome.
func TrackQueueOperation(operation, shopID, status string) {
	queueOperations.WithLabelValues(operation, shopID, status).Inc()
}

// TrackNotification counts one fanout delivery outcome.
func TrackNotification(channel, outcome string) {
	notificationDispatch.WithLabelValues(channel, outcome).Inc()
}

// SetQueueLength records the active entry count for a shop.
func SetQueueLength(shopID string, n int) {
	queueLength.WithLabelValues(shopID).Set(float64(n))
}

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(ctx context.Context, redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics(ctx)

	return monitor
}

func (m *Monitor) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := m.redis.SCard(ctx, "active_shops").Result(); err == nil {
				activeShops.Set(float64(n))
			}
			goroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}
