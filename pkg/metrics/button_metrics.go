// Button controller metrics definitions
//
// Edge, event, action and failure counters for the button controller,
// plus line and printer connection state.
//
// Copyright (C) 2026  FileButtons Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"time"
)

// Event results recorded by RecordEvent.
const (
	EventAccepted = "accepted" // passed the debounce gate and dispatched
	EventRejected = "rejected" // inside the quiescence window
	EventIgnored  = "ignored"  // printer closed, or printing without cancel
)

// ButtonMetrics holds all controller metrics
type ButtonMetrics struct {
	Edges            *Counter
	Events           *Counter
	Actions          *Counter
	Failures         *Counter
	DispatchTime     *Histogram
	LinesClaimed     *Gauge
	PrinterConnected *Gauge
	Reloads          *Counter

	HostUptime   *Gauge
	GoGoroutines *Gauge
	GoMemoryHeap *Gauge

	startTime time.Time
	registry  *Registry
}

// NewButtonMetrics creates and registers all controller metrics
func NewButtonMetrics() *ButtonMetrics {
	bm := &ButtonMetrics{
		startTime: time.Now(),
		registry:  NewRegistry(),
	}

	bm.Edges = NewCounter("filebuttons_edges_total",
		"GPIO edges seen per channel and direction")
	bm.Events = NewCounter("filebuttons_events_total",
		"Press events by gate result")
	bm.Actions = NewCounter("filebuttons_actions_total",
		"Dispatched actions by kind")
	bm.Failures = NewCounter("filebuttons_failures_total",
		"Failed actions by error code")
	bm.DispatchTime = NewHistogram("filebuttons_dispatch_seconds",
		"Time from edge to completed action", ExponentialBuckets(0.001, 4, 7))
	bm.LinesClaimed = NewGauge("filebuttons_line_claimed",
		"Whether the channel's GPIO line is claimed (0/1)")
	bm.PrinterConnected = NewGauge("filebuttons_printer_connected",
		"Whether the printer backend reports a usable connection (0/1)")
	bm.Reloads = NewCounter("filebuttons_config_reloads_total",
		"Config reloads by result")

	bm.HostUptime = NewGauge("filebuttons_uptime_seconds",
		"Seconds since the controller started")
	bm.GoGoroutines = NewGauge("go_goroutines",
		"Number of goroutines")
	bm.GoMemoryHeap = NewGauge("go_memstats_heap_alloc_bytes",
		"Heap bytes allocated")

	bm.registry.MustRegister(
		bm.Edges, bm.Events, bm.Actions, bm.Failures, bm.DispatchTime,
		bm.LinesClaimed, bm.PrinterConnected, bm.Reloads,
		bm.HostUptime, bm.GoGoroutines, bm.GoMemoryHeap,
	)
	return bm
}

// UpdateSystemMetrics updates Go runtime metrics
func (bm *ButtonMetrics) UpdateSystemMetrics() {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)

	bm.GoGoroutines.Set(nil, float64(goruntime.NumGoroutine()))
	bm.GoMemoryHeap.Set(nil, float64(m.HeapAlloc))
	bm.HostUptime.Set(nil, time.Since(bm.startTime).Seconds())
}

// RecordEdge counts one edge on a channel.
func (bm *ButtonMetrics) RecordEdge(channel string, asserted bool) {
	edge := "release"
	if asserted {
		edge = "press"
	}
	bm.Edges.Inc(Labels{"channel": channel, "edge": edge})
}

// RecordEvent counts a press by gate result.
func (bm *ButtonMetrics) RecordEvent(result string) {
	bm.Events.Inc(Labels{"result": result})
}

// RecordAction counts a dispatched action and its latency.
func (bm *ButtonMetrics) RecordAction(action string, elapsed time.Duration) {
	bm.Actions.Inc(Labels{"action": action})
	bm.DispatchTime.ObserveDuration(Labels{"action": action}, elapsed)
}

// RecordFailure counts a failed action by error code.
func (bm *ButtonMetrics) RecordFailure(code string) {
	if code == "" {
		code = "unknown"
	}
	bm.Failures.Inc(Labels{"code": code})
}

// SetLineClaimed updates the claim state of a channel's line.
func (bm *ButtonMetrics) SetLineClaimed(channel string, claimed bool) {
	bm.LinesClaimed.SetBool(Labels{"channel": channel}, claimed)
}

// SetPrinterConnected updates the printer connection gauge.
func (bm *ButtonMetrics) SetPrinterConnected(connected bool) {
	bm.PrinterConnected.SetBool(nil, connected)
}

// RecordReload counts a config reload.
func (bm *ButtonMetrics) RecordReload(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	bm.Reloads.Inc(Labels{"result": result})
}

// Gather returns all metrics in Prometheus text format
func (bm *ButtonMetrics) Gather() string {
	bm.UpdateSystemMetrics()
	return bm.registry.Gather()
}

// Registry returns the internal registry
func (bm *ButtonMetrics) Registry() *Registry {
	return bm.registry
}
