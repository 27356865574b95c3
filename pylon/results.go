package pylon

import (
	"context"
	"iter"
	"time"
)

// resultPoll bounds a single wait so that context cancellation and the end
// of acquisition are noticed.
const resultPoll = 100 * time.Millisecond

// Results yields results as they become ready, driven by the wait object.
// Each yielded result is owned by the caller, who must Release it; holding
// more results than MaxNumBuffer starves the acquisition. The sequence ends
// when grabbing stops, when the loop body breaks, or after yielding an
// error, which is ctx.Err() when the context ends.
func (c *InstantCamera) Results(ctx context.Context) iter.Seq2[*GrabResult, error] {
	return func(yield func(*GrabResult, error) bool) {
		w, err := c.WaitObject()
		if err != nil {
			yield(nil, err)
			return
		}
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			grabbing, err := c.IsGrabbing()
			if err != nil {
				yield(nil, err)
				return
			}
			if !grabbing {
				return
			}
			ready, err := w.Wait(resultPoll)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ready {
				continue
			}
			res, err := NewGrabResult()
			if err != nil {
				yield(nil, err)
				return
			}
			found, err := c.RetrieveResult(0, res, Return)
			if err != nil || !found {
				res.Release()
				if err != nil {
					yield(nil, err)
					return
				}
				// Another consumer took the result.
				continue
			}
			if !yield(res, nil) {
				return
			}
		}
	}
}
