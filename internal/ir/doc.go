// Package ir provides the leaf value types shared by every livefetch package.
//
// This package contains type definitions and their encodings only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// record model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers and timestamps
//   - Record fields are flat: string, int and bool values only
//   - All JSON tags use snake_case
//   - Ordering uses logical commit seq, never wall-clock time
package ir
