// Package redisstore provides a Redis-backed notification store.
//
// Records are stored as JSON strings with a sorted-set index on creation
// time, so listings and retention sweeps avoid keyspace scans. The store
// plugs into the engine through the WithStore option:
//
//	client, err := redisstore.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store, err := redisstore.New(client)
//	if err != nil {
//		return err
//	}
//	engine, err := notifykit.New(engineCfg, notifykit.WithStore(store))
//
// Filtering beyond the index is applied client-side; the store targets
// per-user notification volumes, not analytical workloads.
package redisstore
