// Package trustpool holds worker trust fund balances and releases them.
//
// A worker's record is created by the first contribution and is never
// deleted. Funds leave the pool by full redemption to a KYC-verified child
// identity or by a withdrawal approved by a quorum of three other parties.
// Either way the external transfer is confirmed before the balance is
// debited, and the debit re-checks the balance under the record lock.
package trustpool
