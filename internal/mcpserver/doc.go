// Package mcpserver exposes a judge council over the Model Context Protocol
// so agent hosts can request a review of a diff and read back the verdict.
//
// Tools: tribunal_review, tribunal_judges.
package mcpserver
