// Package store defines the contract between the driver and a
// column-oriented backing store.
//
// A backing store holds tables. Every table has a set of column
// families that must be created explicitly before they are used
// and each family carries its own storage properties. Rows are
// addressed by byte keys and hold cells addressed by family and
// qualifier. Rows are kept in ascending key order so tables can be
// range scanned.
//
//  - Store
//    - Table A (enabled)
//      - Family "cf"   {compression: gz, maxVersions: 1, ...}
//        - row1: {q1: v1, q2: v2}
//        - row2: {q1: v3}
//      - Family "meta" {inMemory: true, ...}
//    - Table B (disabled)
//
// Schema changes are online: a table is disabled, its families are
// added or modified, then it is enabled again. A disabled table
// rejects reads and writes with ErrTableDisabled.
//
// Stores are shared by many independent client processes and do
// not coordinate schema changes between them. That is the driver's
// job.
package store
