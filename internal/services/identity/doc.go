// Package identity owns the process key pair and display name.
//
// The key pair is generated once per process and never rotated or persisted.
// Session keys are derived here so the private scalar never leaves the
// package.
package identity
