/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package locker serializes verification attempts per policy. A single node
// uses the in-process keyed mutex; multi-node deployments use the
// redsync-backed distributed locker so that two gateways never race the same
// attempt budget.
package locker

import (
	"context"
	"sync"

	"github.com/go-redsync/redsync/v4"
)

// Lock guards a single policy's attempt pipeline.
type Lock interface {
	LockContext(ctx context.Context) error
	UnlockContext(ctx context.Context) (bool, error)
	Unlock() (bool, error)
}

// Locker hands out locks keyed by policy ID.
type Locker interface {
	NewMutex(key string, opts ...redsync.Option) Lock
}

// KeyedMutexLocker is the in-process Locker. Mutexes are created on first
// use and retained for the life of the process; policy IDs are bounded by
// the policies this node serves.
type KeyedMutexLocker struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

// NewKeyedMutex creates an in-process Locker.
func NewKeyedMutex() *KeyedMutexLocker {
	return &KeyedMutexLocker{
		mutexes: make(map[string]*sync.Mutex),
	}
}

// NewMutex returns the lock for the key, creating it if absent.
func (k *KeyedMutexLocker) NewMutex(key string, _ ...redsync.Option) Lock {
	k.mu.Lock()
	if _, ok := k.mutexes[key]; !ok {
		k.mutexes[key] = &sync.Mutex{}
	}
	mu := k.mutexes[key]
	k.mu.Unlock()

	return &KeyedMutex{
		Mut: mu,
	}
}

// KeyedMutex adapts sync.Mutex to the Lock interface.
type KeyedMutex struct {
	Mut *sync.Mutex
}

// LockContext locks the mutex. The context is ignored: local locks are
// only held across one attempt pipeline and cannot deadlock across nodes.
func (k *KeyedMutex) LockContext(_ context.Context) error {
	k.Mut.Lock()
	return nil
}

// UnlockContext unlocks the mutex.
func (k *KeyedMutex) UnlockContext(_ context.Context) (bool, error) {
	return k.Unlock()
}

// Unlock unlocks the mutex.
func (k *KeyedMutex) Unlock() (bool, error) {
	k.Mut.Unlock()

	return true, nil
}
