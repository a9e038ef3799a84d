// Package core implements registry export synchronization for health
// provider organizations.
//
// It is independent of any transport. The web server, the CLI and tests all
// drive it through [Service].
//
// # Pipeline
//
// One synchronization moves each uploaded export through four stages:
//
//  1. [Extract] finds the table in an HTML or delimited export, decodes
//     UTF-8 or Windows-1252, locates the header row and maps header
//     spellings to canonical columns.
//  2. [Normalizer] cleans cells and turns rows into location and service
//     drafts using the shape's registered [BuildFunc]. Bad rows are skipped
//     with a [ValidationWarning]; they never abort the run.
//  3. [Engine.Reconcile] applies all drafts in one transaction, either in
//     [ModeMerge] (create or update by natural key) or [ModeForceRecreate]
//     (delete the imported scope, then rebuild). Duplicate keys in the input
//     fail the run before any write.
//  4. [SyncRun] collects per-file counts, errors and warnings and renders a
//     capped text summary.
//
// # Shapes
//
// Export shapes are registered at init time with [Register]; see package
// tables for the headquarters and services definitions.
//
// # Safety nets
//
// A [BackupController] can snapshot the organization inside the sync
// transaction, and [Service.Restore] rebuilds from such a snapshot.
// [Diagnose] scans stored keys for drift that only a force_recreate repairs.
//
// # Alerts
//
// [EvaluateAlerts] checks stored services against expiry dates and a
// [Catalog] of allowed complexity levels. Alerts are refreshed after each
// successful sync and by [Service.StartAlertScheduler].
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Each
// family has its own code prefix: EXT (unreadable export), REC (rolled back
// reconciliation), TMO (timeout), REQ (request), DB (store) and VAL
// (validation).
package core
