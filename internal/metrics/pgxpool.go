package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolGauge describes one gauge derived from pgxpool.Stat.
type poolGauge struct {
	name string
	help string
	read func(*pgxpool.Stat) float64
}

var poolGauges = []poolGauge{
	{"acquired_conns", "Connections currently checked out of the pool.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
	{"idle_conns", "Idle connections held by the pool.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
	{"total_conns", "All connections owned by the pool.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
	{"max_conns", "Configured pool size.", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
	{"empty_acquire_total", "Acquires that had to wait for a connection.", func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
}

// RegisterPgxPoolMetrics exposes pool statistics as billing_db_* gauges on reg.
func RegisterPgxPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	for _, g := range poolGauges {
		read := g.read
		collector := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "billing",
			Subsystem: "db",
			Name:      g.name,
			Help:      g.help,
		}, func() float64 {
			return read(pool.Stat())
		})
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
