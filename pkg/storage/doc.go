// Package storage holds what the store backends share: sentinel errors
// and the tenant context helpers.
//
// The memory and postgres subpackages implement transport.CompletionStore.
// The interface itself lives in pkg/transport so stores and transports
// stay decoupled.
package storage
