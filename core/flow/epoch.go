package flow

import "sync/atomic"

// Epoch is a monotonically increasing session counter. A step captures the
// current value when it starts and may only apply its result while the
// value is still current; every reset advances it.
type Epoch struct {
	value atomic.Uint64
}

type EpochToken uint64

func (e *Epoch) Current() EpochToken { return EpochToken(e.value.Load()) }

func (e *Epoch) Advance() EpochToken { return EpochToken(e.value.Add(1)) }

func (e *Epoch) IsCurrent(token EpochToken) bool { return e.Current() == token }
