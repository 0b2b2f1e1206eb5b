// Package proposalengine implements proposal governance for fan-owned
// organizations.
//
// The module owns the Draft -> Open -> Closed -> Finalized lifecycle, the
// rules that gate every transition and vote, and the weighted tally with
// quorum over the voting power snapshot taken at opening. Expired proposals
// are closed by a scheduler that races the API through the same guarded
// persistence write, and lifecycle facts leave the module through an outbox.
package proposalengine
