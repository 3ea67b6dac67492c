// Package catalog provides the Polymarket Gamma API client for market metadata.
//
// REST endpoint:
//   - Production: https://gamma-api.polymarket.com
//
// Key lookups: event by slug (markets, CLOB token IDs, end date) and market
// by slug (condition ID, ended/closed flags, outcome prices). List-valued
// fields arrive in several encodings; see FlexStrings.
package catalog
