// Package store defines the persistence contracts for stories along with
// the error values and transaction helper shared by every implementation.
package store
