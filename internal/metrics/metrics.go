// Package metrics exposes process counters through expvar.
package metrics

import (
	"expvar"
)

var (
	// ArchiveRequestsTotal counts HTTP requests sent to the archive
	ArchiveRequestsTotal = expvar.NewInt("archive_requests_total")

	// ArchiveRetriesTotal counts retried archive requests
	ArchiveRetriesTotal = expvar.NewInt("archive_retries_total")

	// ChecksTotal counts existence checks
	ChecksTotal = expvar.NewInt("checks_total")

	// ChecksFound counts checks that found the title remotely
	ChecksFound = expvar.NewInt("checks_found")

	// ChecksInconclusive counts checks with at least one strategy that gave up
	ChecksInconclusive = expvar.NewInt("checks_inconclusive")

	UnitsDeleted      = expvar.NewInt("units_deleted")
	UnitsUploaded     = expvar.NewInt("units_uploaded")
	UnitsRelocated    = expvar.NewInt("units_relocated")
	UnitsSkippedEmpty = expvar.NewInt("units_skipped_empty")

	// UploadsFailed counts uploader calls that reported failure
	UploadsFailed = expvar.NewInt("uploads_failed")

	// FilesystemErrors counts failed deletes and relocations
	FilesystemErrors = expvar.NewInt("filesystem_errors")

	// BytesFreed sums the size of deleted units
	BytesFreed = expvar.NewInt("bytes_freed")

	// FilesQuarantined counts files copied by error triage
	FilesQuarantined = expvar.NewInt("files_quarantined")
)
