package keyword

var (
	OpsTotal        = "atomic_shared_ops_total"         // per-operation counter, op label
	CASTotal        = "atomic_shared_cas_total"         // per-kind CAS counter, kind + result labels
	PassDurationMs  = "atomic_shared_pass_duration_ms"  // per-workload pass duration histogram
	ChecksumUpdates = "atomic_shared_checksum_updates"  // read-sum checksum contributions
	AllocLiveBlocks = "atomic_shared_alloc_live_blocks" // tracking allocator gauge
	AllocLiveBytes  = "atomic_shared_alloc_live_bytes"  // tracking allocator gauge
	WorkersRunning  = "atomic_shared_workers_running"   // currently active workers
)
