// Package ratelimit provides request budget tracking for the osu! API.
//
// The osu! scoring API documents a soft budget of 60 requests per minute
// with a hard ceiling of 1200. This package tracks request counts in a
// fixed-length window so callers can stay inside a configured budget.
//
// The Window type is deliberately passive: it only counts and answers
// questions. Deciding what to do when the window is saturated (sleep it
// out, discard it) is the caller's policy, which keeps the type reusable
// for both API calls and mirror downloads.
//
// Usage:
//
//	w := ratelimit.NewWindow(500, time.Minute)
//
//	if w.Saturated() {
//	    time.Sleep(w.UntilReset())
//	    w.Discard()
//	}
//	w.Record()
//	// issue the request
package ratelimit
