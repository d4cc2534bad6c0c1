// Package stores provides SQLite-backed persistence for the production
// engine: sales-order lines, the product catalog, the material ledger, work
// orders, idempotency tokens, and the audit trail.
//
// Every mutating work-order operation runs in a single immediate transaction
// so work-order changes and line claims commit or roll back as one unit.
package stores
