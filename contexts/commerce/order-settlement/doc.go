// Package ordersettlement implements checkout and settlement inside the
// commerce context.
//
// A paid order is validated against the catalog snapshot, confirmed, split
// into seller, platform and franchise amounts by seller tier, and its stock
// is reserved in the same unit of work. Commission payout runs against the
// ledger outside any transaction and escalates to manual review when the
// ledger stays unavailable.
package ordersettlement
