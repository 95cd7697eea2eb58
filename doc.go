// Package cimodel is a small record-mapping core: an in-memory Record with
// dirty tracking, an indexed Collection of records, and a Factory that wires
// records to a storage Gateway.
//
// # Overview
//
// The package manages record state and in-memory indexing only. All
// persistence I/O goes through the Gateway interface, implemented by:
//
//   - filestore: JSONL tables on the local filesystem or S3/MinIO
//   - pgstore: PostgreSQL (or the bundled dev server) through pgx
//
// # Quick Start
//
//	registry := cimodel.NewRegistry()
//	registry.MustRegister("billing.UserAccount", cimodel.Definition{})
//
//	gateway, _ := filestore.Open(ctx, "./data")
//	factory, _ := cimodel.NewFactory(cimodel.Config{
//	    Gateway:   gateway,
//	    Registry:  registry,
//	    Namespace: "billing",
//	})
//
//	account, _ := factory.Record("UserAccount")     // table user_account
//	account.Set("email", "alice@example.com")
//	err := account.Save(ctx)                         // insert, id assigned
//
//	account.Set("email", "alice@example.org")
//	err = account.Save(ctx)                          // update of "email" only
//
// # Records
//
// A record exists once it reflects a persisted row: after LoadByID or Find
// matched, after a successful insert, or when built with RecordWithData.
// Set marks the record modified when a value is new or differs under the
// factory's Equality policy; once the record exists, changed keys are
// remembered so Save sends a minimal update. Save on an unmodified record
// makes no gateway call.
//
// Lookups that match nothing are not errors: check Exists. LoadByID on a
// missing row leaves the requested id in the id field so that Save inserts
// with it as a hint.
//
// ID is memoized on first non-nil read and never refreshed. Reassigning the
// id field later does not change ID or the condition used by Save.
//
// # Conditions
//
// A Condition maps field names to values, combined with AND. Keys may end in
// an operator after a space:
//
//	cimodel.Condition{"tenant_id": 1, "status <>": "archived"}
//
// Supported operators are "=" (the default) and "<>" ("!=" is accepted).
//
// # Collections
//
// FindAll returns a Collection. When index fields are given, records are
// keyed by a hash of their index-field values: records with equal values
// replace each other, and Collection.FindAll over exactly those fields is a
// single map lookup instead of a scan.
//
//	users, _ := account.FindAll(ctx, nil, 0, 0, "tenant_id", "user_id")
//	match := users.FindAll(cimodel.Condition{"tenant_id": 1, "user_id": 7})
//
// # Equality
//
// StrictEquality (the default) compares values of the same kind, with
// numbers compared by value across Go numeric types. LooseEquality also
// treats numeric strings as numbers (0 == "0"); collections never use the
// index fast path under it.
//
// # Error Handling
//
//	err := account.Save(ctx)
//	if errors.Is(err, cimodel.ErrMissingUpdateCondition) {
//	    // record exists but its id field is empty
//	}
//	var perr *cimodel.PersistenceError
//	if errors.As(err, &perr) {
//	    log.Printf("insert into %s failed: %s", perr.Table, perr.Statement)
//	}
//
// # Observability
//
// Pass a Logger (NewProductionZapLogger) and Metrics (NewPrometheusMetrics)
// in Config. Records report load hits and misses, write outcomes and gateway
// latency per table; collections report index hits and misses.
//
// # Concurrency
//
// Records and collections are not safe for concurrent mutation. Distinct
// records from one Factory may be used concurrently when the Gateway is.
// Transactions are plain pass-throughs to the gateway with no nesting.
package cimodel
