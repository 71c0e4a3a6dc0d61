// acquire.go drives the AcquireEntity and LockEntity ownership state
// machines spec §4.G's acquireEntity/releaseEntity/lockEntity/
// unlockEntity operations maintain per remote entity: this controller's
// local belief about who currently owns (or has locked) each
// ControlledEntity, kept in sync with the AEM EntityAcquired/EntityLocked
// status codes (spec §7) a command response can carry.
package controller

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/avdecc-go/avdecc/pkg/avdecc/hooks"
	"github.com/avdecc-go/avdecc/pkg/avdecc/localentity"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// Ownership states shared by the acquire and lock state machines. A
// remote entity starts Unowned; a try transitions it to Trying, which
// then resolves to either Owned (this controller holds it) or
// OwnedByOther (the command failed: another controller answered
// EntityAcquired/EntityLocked first, or no response arrived before the
// retries ran out).
const (
	OwnershipUnowned      = "unowned"
	OwnershipTrying       = "trying"
	OwnershipOwned        = "owned"
	OwnershipOwnedByOther = "owned_by_other"
)

// newOwnershipFSM builds one independent acquire- or lock-ownership state
// machine, following looplab/fsm's event-driven style (as used for
// etrirepo-25G-Simulator's OLT internal-state machine): named events
// with explicit Src/Dst state lists rather than a hand-rolled switch.
func newOwnershipFSM() *fsm.FSM {
	return fsm.NewFSM(
		OwnershipUnowned,
		fsm.Events{
			{Name: "try", Src: []string{OwnershipUnowned, OwnershipOwnedByOther}, Dst: OwnershipTrying},
			{Name: "granted", Src: []string{OwnershipTrying}, Dst: OwnershipOwned},
			{Name: "denied", Src: []string{OwnershipTrying}, Dst: OwnershipOwnedByOther},
			{Name: "released", Src: []string{OwnershipOwned, OwnershipTrying}, Dst: OwnershipUnowned},
		},
		fsm.Callbacks{},
	)
}

// AcquireState returns this controller's local view of target's
// AcquireEntity ownership.
func (c *ControlledEntity) AcquireState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.acquireFSM.Current()
}

// LockState returns this controller's local view of target's LockEntity
// ownership.
func (c *ControlledEntity) LockState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lockFSM.Current()
}

// await bridges one callback-style AECP call into a blocking call for the
// acquire/lock operations below, the same shape as enumeration's
// unexported async helper of the same name (duplicated rather than
// exported across packages for one generic function).
func await[T any](ctx context.Context, issue func(func(T, error)) error) (T, error) {
	var zero T
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	if err := issue(func(v T, err error) {
		ch <- result{v, err}
	}); err != nil {
		return zero, err
	}
	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// transitionOwnership drives fs through try → (granted|denied) around one
// AcquireEntity/LockEntity round trip, regardless of which of the two
// state machines the caller supplies.
func transitionOwnership(ctx context.Context, entity *ControlledEntity, fs *fsm.FSM, issue func(localentity.AcquireResultCallback) error) (localentity.AcquireResult, error) {
	entity.mu.Lock()
	_ = fs.Event("try")
	entity.mu.Unlock()

	result, err := await(ctx, func(cb func(localentity.AcquireResult, error)) error {
		return issue(cb)
	})

	entity.mu.Lock()
	if err != nil {
		_ = fs.Event("denied")
	} else {
		_ = fs.Event("granted")
	}
	entity.mu.Unlock()
	return result, err
}

// releaseOwnership drives fs back to Unowned around a ReleaseEntity/
// UnlockEntity round trip. The local state is reset to Unowned even if
// the remote entity reports an error, since a failed release command
// still leaves this controller unable to vouch for holding ownership.
func releaseOwnership(ctx context.Context, entity *ControlledEntity, fs *fsm.FSM, issue func(localentity.AcquireResultCallback) error) (localentity.AcquireResult, error) {
	result, err := await(ctx, func(cb func(localentity.AcquireResult, error)) error {
		return issue(cb)
	})
	entity.mu.Lock()
	_ = fs.Event("released")
	entity.mu.Unlock()
	return result, err
}

// AcquireEntity claims exclusive (or persistent, per flags) ownership of
// target's entire entity descriptor (spec §4.G "acquireEntity").
func (c *Controller) AcquireEntity(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, flags uint32) (localentity.AcquireResult, error) {
	entity, _ := c.registry.getOrCreate(target)
	result, err := transitionOwnership(ctx, entity, entity.acquireFSM, func(cb localentity.AcquireResultCallback) error {
		return c.le.AcquireEntity(target, dstMAC, flags, cb)
	})
	if err == nil {
		c.hm.TriggerEvent(ctx, *hooks.NewEvent(hooks.EventEntityAcquired).WithEntityID(target.String()))
	}
	return result, err
}

// ReleaseEntity releases a previously acquired entity (spec §4.G
// "releaseEntity").
func (c *Controller) ReleaseEntity(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress) (localentity.AcquireResult, error) {
	entity, _ := c.registry.getOrCreate(target)
	result, err := releaseOwnership(ctx, entity, entity.acquireFSM, func(cb localentity.AcquireResultCallback) error {
		return c.le.ReleaseEntity(target, dstMAC, cb)
	})
	c.hm.TriggerEvent(ctx, *hooks.NewEvent(hooks.EventEntityReleased).WithEntityID(target.String()))
	return result, err
}

// LockEntity prevents other controllers from changing target's state
// without releasing this controller's own in-progress operation (spec
// §7 "LockEntity").
func (c *Controller) LockEntity(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress) (localentity.AcquireResult, error) {
	entity, _ := c.registry.getOrCreate(target)
	result, err := transitionOwnership(ctx, entity, entity.lockFSM, func(cb localentity.AcquireResultCallback) error {
		return c.le.LockEntity(target, dstMAC, cb)
	})
	if err == nil {
		c.hm.TriggerEvent(ctx, *hooks.NewEvent(hooks.EventEntityLocked).WithEntityID(target.String()))
	}
	return result, err
}

// UnlockEntity releases a previously taken lock.
func (c *Controller) UnlockEntity(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress) (localentity.AcquireResult, error) {
	entity, _ := c.registry.getOrCreate(target)
	result, err := releaseOwnership(ctx, entity, entity.lockFSM, func(cb localentity.AcquireResultCallback) error {
		return c.le.UnlockEntity(target, dstMAC, cb)
	})
	c.hm.TriggerEvent(ctx, *hooks.NewEvent(hooks.EventEntityUnlocked).WithEntityID(target.String()))
	return result, err
}
