package backup

import "errors"

// ErrBackupIO indicates the snapshot could not be written to the object
// store. The orchestrator treats this as non-fatal for plain seed runs.
var ErrBackupIO = errors.New("backup write failed")

// ErrSnapshotNotFound indicates a restore request did not resolve to an
// existing snapshot. No data is mutated.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrRestore indicates a failure partway through restore. The transaction is
// rolled back and the original data left untouched.
var ErrRestore = errors.New("restore failed")
