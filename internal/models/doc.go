// Package models defines the domain entities of the smart list synchronizer.
//
// The package contains three categories of types:
//
// 1. Catalog data: read-only values owned by the media server
//   - [MediaEntry] : a media item with typed attributes addressable by [Field]
//   - [Value] : tagged union holding one attribute value
//
// 2. Rule grammar: the fixed three-level boolean language
//   - [Expression] : one predicate (field, operator, operand, negate)
//   - [ExpressionSet] : expressions combined with AND
//   - [RuleSet] : expression sets combined with OR
//   - [OrderSpec] : ordering applied after composition
//
// 3. Persistent documents: owner-partitioned JSON documents
//   - [SmartListConfig] : one smart list definition plus its sync metadata
//   - [ExclusionEntry] : a time-bounded or permanent ignore of one entry in one list
//   - [RefreshRun] : outcome of a single refresh, stored in the run log
//
// [SyncResult] is the ephemeral value returned by every refresh.
package models
