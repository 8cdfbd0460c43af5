// Package pgstore provides a PostgreSQL-backed notification store.
//
// The full record is a JSONB payload; the columns filters touch
// (user, source, batch, type, priority, status, creation time) are
// extracted for indexing so listing and retention run as SQL. The store
// plugs into the engine through the WithStore option:
//
//	pool, err := pgstore.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store, err := pgstore.New(pool)
//	if err != nil {
//		return err
//	}
//	if err := store.EnsureSchema(ctx); err != nil {
//		return err
//	}
//	engine, err := notifykit.New(engineCfg, notifykit.WithStore(store))
package pgstore
