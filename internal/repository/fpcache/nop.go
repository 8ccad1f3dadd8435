package fpcache

import (
	"context"
	"time"
)

// Nop is a Store that never holds anything.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }

// Put discards the value.
func (Nop) Put(context.Context, string, []byte, time.Duration) {}

// Sweep removes nothing.
func (Nop) Sweep(context.Context) int { return 0 }
