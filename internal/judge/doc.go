// Package judge invokes a single council member. An Invoker owns one judge's
// configuration and backend, enforces the judge's own timeout, and reports
// failures as a typed Outcome (timeout, rate_limited, transport_error) rather
// than an error. It never retries and never panics outward.
package judge
