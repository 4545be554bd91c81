// Package store persists runtime data in SQLite.
//
// Three repositories share one database:
//   - HistoryRepository: device state changes, fed from status pushes
//   - OverrideRepository: property values changed at runtime, merged over
//     the slot file when devices are loaded
//   - CommandRepository: commands accepted from callers and their result codes
//
// The schema lives in the migrations package and is applied with
// database.DB.Migrate before any repository is used.
package store
