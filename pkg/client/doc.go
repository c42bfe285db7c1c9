// Package client is the Go SDK for the PNW settlement service.
//
// It wraps the settlementd REST API: operator login, employer compliance,
// payroll assignment, trust pool custody and settlement decisions.
//
// # Logging in
//
//	c, err := client.New("https://settlement.example.org")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := c.Login(ctx, "gov-desk", password); err != nil {
//	    log.Fatal(err)
//	}
//
// Login stores the returned session token on the client; every later call
// sends it as a Bearer token. A token obtained elsewhere can be supplied
// with WithBearerToken instead.
//
// # Settling payroll
//
//	d, err := c.SettlePayroll(ctx, client.PayrollRequest{WorkerID: "w1"})
//	if err != nil {
//	    log.Fatal(err) // transport, auth or server failure
//	}
//	switch d.Outcome {
//	case client.OutcomeApprove:
//	case client.OutcomeEscalate: // network congested, retry later
//	case client.OutcomeReject:   // d.Code says why
//	}
//
// A decision is never an error: rejects and escalations come back as a
// Decision with the outcome set. Errors are reserved for requests the
// service could not decide, and are returned as *APIError when the server
// answered.
//
// # Retrying safely
//
// With WithIdempotency every POST carries a fresh Idempotency-Key, and
// WithIdempotencyKey pins a key to a context so a retried call replays the
// first response instead of moving funds twice:
//
//	ctx = client.WithIdempotencyKey(ctx, "contribution-2026-10-w1")
//	rec, err := c.Contribute(ctx, "w1", 500)
package client
