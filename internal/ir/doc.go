// Package ir provides the foundational types shared by every coral package.
//
// This package contains type definitions and the canonical schema
// fingerprint. All other internal packages import ir; ir imports nothing
// internal. This keeps ids, flag vectors, native values and persisted record
// shapes at the bottom of the import graph.
//
// Key design constraints:
//   - Entities crossing the store boundary are typed integer ids, never pointers
//   - NO float values anywhere - numbers are int64
//   - Value is a sealed interface; backends switch on it exhaustively
package ir
