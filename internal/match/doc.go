// Package match reconciles executed trades against recorded watch sessions.
//
// Matching runs three tiers in strict priority order: condition ID (same
// on-chain market instance), exact (same slug and token), and slug-only
// (same recurring market, window suffix ignored). The first tier with
// candidates wins; ties within a tier go to the session whose window
// midpoint is closest to the trade's execution time. Unmatched trades are
// reported, never dropped.
package match
