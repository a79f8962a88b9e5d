// Package storage defines the persistence model of the registry: Storables,
// their keys, the query vocabulary used to find them, and the contracts which
// storage managers implement.
//
// A Storable is a versionless record living in a namespace (a table). Its
// identity is its StorableKey, the pair of namespace and PrimaryKey. Managers
// are the sole writers of record state, and may be layered: a database-backed
// manager (package sqlstore) is typically wrapped by a cache-backed manager
// (package cachedstore) which accelerates point lookups.
//
// Transactions are carried by context.Context. A manager's BeginTransaction
// returns a derived Context bound to the transaction, and every operation
// issued with that Context runs within it:
//
//	var err = storage.RunInTransaction(ctx, manager, storage.ReadCommitted,
//	    func(ctx context.Context) error {
//	        var events, err = manager.Search(ctx, query)
//	        ...
//	    })
package storage
