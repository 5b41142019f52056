// Package worker contains the lead processor, the handler that consumes
// Lead.New events from the lead processing queue.
//
// For every new lead the processor sends a welcome email, updates the CRM
// and stores the category derived from the lead source. A failing step fails
// the whole event: the queue retries it from the first step, so every step
// must tolerate running more than once.
package worker
