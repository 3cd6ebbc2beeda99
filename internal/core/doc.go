// Package core holds the regulation ingestion pipeline, independent of any
// transport. The CLI, the HTTP trigger and the inbox watcher all call the
// same [Service].
//
// # Pipeline
//
// A run takes a batch of scraped records through these steps:
//
//  1. Validate every record against the [Catalog] ([Validator]).
//  2. Take the per-entity lock and open the store once.
//  3. Load the identifying keys already stored for the entity.
//  4. Drop records of other entities, then cross-batch and internal
//     duplicates ([Dedup]).
//  5. Sanitize and insert the rest in a single transaction ([Loader]).
//  6. Link the new ids to the component in a second transaction.
//  7. Report an [Outcome] with the summary line.
//
// # Catalog
//
// Rules are declared per field as {required, type, regex} in JSON or YAML.
// [DefaultCatalog] returns the rules compiled into the binary; [LoadCatalog]
// reads a file. A catalog is a plain value passed to [NewValidator].
//
// # Outcomes and errors
//
// Runs that write nothing are not errors: they end with an [Outcome] of kind
// nothing_to_insert, all_duplicates or duplicate_conflict, and [Outcome.Err]
// turns them into a [*NoInsertError] for callers that need a failure. Errors
// returned by [Service.Run] are fatal and leave the store untouched.
//
// Technical errors are mapped to user-facing messages with support codes by
// [MapError]:
//
//   - DB001-DB007: database errors
//   - VAL001-VAL004: catalog, batch format and field errors
//   - ING001-ING004: runs that inserted nothing
//   - RUN001-RUN004: busy, locked, cancelled, timed out
package core
