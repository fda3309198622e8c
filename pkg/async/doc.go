// Package async runs functions concurrently and collects their results.
//
// Map fans a slice out over a bounded number of goroutines:
//
//	results := async.Map(ctx, channels, 4, deliver)
//	for i, r := range results {
//	    // r.Value, r.Err belong to channels[i]
//	}
//
// Go starts a single function and returns a Future. Panics are recovered
// into a *PanicError that matches ErrPanic.
package async
