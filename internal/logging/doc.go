// Package logging provides structured JSON logging for tribunal.
//
// It wraps log/slog with child loggers that carry persistent attributes,
// so that every council event for one review shares a review_id and every
// judge event also carries its judge_id. A timeline of one review can be
// reconstructed by filtering on review_id.
package logging
