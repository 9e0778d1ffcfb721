package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas de registración de providers y de bootstrap. Package standalone
// para evitar ciclos de import entre authority, manager y bootstrap.

var (
	RegistrationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_registrations_total",
		Help: "Registraciones exitosas de providers, por authority",
	}, []string{"authority"})

	RegistrationsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_registrations_failed_total",
		Help: "Registraciones fallidas de providers, por authority",
	}, []string{"authority"})

	RegistrationsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "provider_instances_active",
		Help: "Instancias vivas de providers, por authority",
	}, []string{"authority"})

	BootstrapPhaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bootstrap_phase_duration_seconds",
		Help:    "Duración de cada fase del bootstrap",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"phase"})

	BootstrapItemsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bootstrap_items_failed_total",
		Help: "Items fallidos (y salteados) durante el bootstrap, por fase",
	}, []string{"phase"})
)

// Register registra los collectors en reg (o el default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		RegistrationsTotal,
		RegistrationsFailed,
		RegistrationsActive,
		BootstrapPhaseDuration,
		BootstrapItemsFailed,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
