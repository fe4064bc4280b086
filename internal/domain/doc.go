// Package domain defines core data models, error categories and interfaces
// shared by the client and the relay. It contains plain types and contracts
// only; the types and interfaces subpackages hold the definitions and this
// package re-exports them for compact imports.
package domain
