package enumeration

import (
	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
)

// FailureAction is what the scheduler does in response to one
// per-descriptor command failing (spec §4.I "Failure handling during
// enumeration").
type FailureAction int

const (
	// FailureAbsent marks the attempted descriptor missing and continues;
	// the entity is otherwise considered well-behaved.
	FailureAbsent FailureAction = iota
	// FailureMisbehaving continues enumeration but flags the entity
	// Misbehaving for this session.
	FailureMisbehaving
	// FailureFatal aborts enumeration entirely; only ReadEntityDescriptor
	// itself classifies this way.
	FailureFatal
)

// classify maps a command's (status, err) outcome to the action the
// scheduler should take, given whether the failing step was the
// entity-descriptor read itself.
func classify(status avdeccerrors.AemStatus, err error, isEntityDescriptorRead bool) FailureAction {
	if isEntityDescriptorRead && (err != nil || !status.IsSuccess()) {
		return FailureFatal
	}
	if avdeccerrors.IsTimeout(err) {
		return FailureMisbehaving
	}
	if err != nil {
		return FailureMisbehaving
	}
	switch status {
	case avdeccerrors.AemStatusNotImplemented, avdeccerrors.AemStatusNoSuchDescriptor:
		return FailureAbsent
	case avdeccerrors.AemStatusSuccess:
		return FailureAbsent // not actually a failure; callers only invoke classify on non-success
	default:
		return FailureMisbehaving
	}
}
