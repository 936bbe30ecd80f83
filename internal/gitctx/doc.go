// Package gitctx extracts the change under review from a git repository.
//
// It supports the five tribunal review modes (unstaged, staged, commit,
// range and snippet) by shelling out to git with appropriate arguments.
// Results are filtered by exclude glob patterns and truncated on a line
// boundary to a configurable maximum byte size. [DiffResult.Request] turns
// the result into the request a council reviews.
package gitctx
