package models

import (
	"math"

	id "timevault/pkg/domain"
	dErrors "timevault/pkg/domain-errors"
)

// RegistryVersion is the layout version written by InitializeRegistry.
const RegistryVersion uint8 = 1

// Registry is the singleton sequencing record. TotalCapsules is the id the next
// created capsule receives; it never decreases, and closing a capsule does not
// return its id.
type Registry struct {
	Authority     id.Identity `json:"authority"`
	TotalCapsules uint64      `json:"total_capsules"`
	Version       uint8       `json:"version"`
}

func NewRegistry(authority id.Identity) (*Registry, error) {
	if authority.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registry authority is required")
	}
	return &Registry{
		Authority: authority,
		Version:   RegistryVersion,
	}, nil
}

// NextID is the id the next created capsule receives.
func (r *Registry) NextID() uint64 {
	return r.TotalCapsules
}

// CanAllocate reports whether the counter can advance without wrapping.
func (r *Registry) CanAllocate() error {
	if r.TotalCapsules == math.MaxUint64 {
		return Fail(ErrRegistryCounterOverflow, "")
	}
	return nil
}

// ApplyAllocation advances the counter by one. Call CanAllocate first.
func (r *Registry) ApplyAllocation() {
	r.TotalCapsules++
}

func (r *Registry) Clone() *Registry {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
