// Package metrics provides application-level counters using stdlib expvar.
// Counters are automatically exported on the /debug/vars HTTP endpoint when
// expvar's handler is mounted in the main binary.
package metrics

import "expvar"

// Timeline counters.
var (
	SnapshotHits    = expvar.NewInt("worldloom_snapshot_hits_total")
	SnapshotMisses  = expvar.NewInt("worldloom_snapshot_misses_total")
	StatesComputed  = expvar.NewInt("worldloom_states_computed_total")
	OpsReplayed     = expvar.NewInt("worldloom_ops_replayed_total")
	OpsSkipped      = expvar.NewInt("worldloom_ops_skipped_total")
	RebuildsTotal   = expvar.NewInt("worldloom_rebuilds_total")
	StaleStateReads = expvar.NewInt("worldloom_stale_state_reads_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }
