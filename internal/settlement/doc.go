// Package settlement is the decision engine. Given a payout or withdrawal
// request it composes network health, stored commitments, employer
// compliance, proof verdicts and quorum state into one of approve, escalate
// or reject, and appends exactly one decision record to the audit log per
// call.
//
// Decision order is fixed. An unhealthy network escalates before anything
// else is consulted. A commitment that does not match the stored root
// rejects with reason "undecided"; a contract with no stored root always
// mismatches. Only then are component-specific gates run.
//
// Domain errors never escape the engine: they become reject decisions whose
// code is model.ErrorCode(err). Storage corruption and other unexpected
// failures are returned to the caller and recorded nowhere.
package settlement
