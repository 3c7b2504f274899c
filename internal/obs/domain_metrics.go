package obs

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// VendingMetrics groups Prometheus collectors for machine transactions.
type VendingMetrics struct {
	Orders          *prometheus.CounterVec
	Refunds         *prometheus.CounterVec
	Selections      *prometheus.CounterVec
	ChangeFailures  prometheus.Counter
	Revenue         prometheus.Counter
	ChangeDispensed prometheus.Counter
	ReserveValue    prometheus.Gauge
}

// NewVendingMetrics registers and returns the machine collectors. Collectors
// already present in reg are reused.
func NewVendingMetrics(namespace string, reg prometheus.Registerer) *VendingMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &VendingMetrics{
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vending_orders_total",
			Help:      "Count of collected orders by item.",
		}, []string{"item"}),
		Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vending_refunds_total",
			Help:      "Count of refunds by reason.",
		}, []string{"reason"}),
		Selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vending_selections_total",
			Help:      "Count of item selections by outcome.",
		}, []string{"result"}),
		ChangeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vending_change_failures_total",
			Help:      "Collections rejected because change could not be made.",
		}),
		Revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vending_revenue_units_total",
			Help:      "Sum of prices of collected orders.",
		}),
		ChangeDispensed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vending_change_dispensed_units_total",
			Help:      "Sum of change handed out with orders.",
		}),
		ReserveValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vending_change_reserve_units",
			Help:      "Face value currently held in the change reserve.",
		}),
	}
	mustRegisterCollector(reg, m.Orders, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Orders = v
		}
	})
	mustRegisterCollector(reg, m.Refunds, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Refunds = v
		}
	})
	mustRegisterCollector(reg, m.Selections, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Selections = v
		}
	})
	mustRegisterCollector(reg, m.ChangeFailures, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Counter); ok {
			m.ChangeFailures = v
		}
	})
	mustRegisterCollector(reg, m.Revenue, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Counter); ok {
			m.Revenue = v
		}
	})
	mustRegisterCollector(reg, m.ChangeDispensed, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Counter); ok {
			m.ChangeDispensed = v
		}
	})
	mustRegisterCollector(reg, m.ReserveValue, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Gauge); ok {
			m.ReserveValue = v
		}
	})
	return m
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register vending metric: %w", err))
	}
}
