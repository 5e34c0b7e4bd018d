// Package model defines the governance record types shared by every other
// package in assetgov.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import model; model imports nothing internal.
//
// Key conventions:
//   - All JSON tags use snake_case and match the persisted column names
//   - Nullable columns are pointers (nil means NULL)
//   - Timestamps are UTC wall-clock times
//   - Structured fields (owners, tags, metadata, dependencies, config) are
//     opaque JSON blobs and must round-trip losslessly
package model
