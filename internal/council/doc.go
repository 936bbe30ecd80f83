// Package council seats a panel of judges, fans one review out to all of them
// concurrently, and combines their verdicts by weighted vote.
//
// Each judge runs under its own timeout; the council as a whole waits at
// most the longest judge timeout plus a buffer. A judge that times out,
// errors, or panics is recorded as failed and the remaining judges still
// decide. Ties between dispositions go to the more cautious one, and
// confidence is discounted by the share of configured weight that actually
// voted.
//
//	c, err := council.New(judges, council.WithLogger(log))
//	if err != nil {
//		return err // *council.ConfigError
//	}
//	verdict := c.Review(ctx, review.Request{Diff: diff})
package council
