// Package daovoting implements DAO governance inside the governance context.
//
// The module owns the proposal lifecycle (draft, voting, passed/rejected/expired,
// executed), weighted vote casting with one active vote per wallet, per-account
// voting preferences, and the auto-vote decision policy. Business rules live in
// the domain and application layers; storage, transport and messaging sit
// behind ports and adapters.
package daovoting
