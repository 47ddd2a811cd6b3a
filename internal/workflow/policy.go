package workflow

// Role is an organization-level role name as reported by the identity
// service.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleCoOwner Role = "co_owner"
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
	RoleGuest   Role = "guest"
)

// Capability is a single permission flag. Roles resolve to capability sets
// once per operation; the transition function never compares role strings.
type Capability uint32

const (
	// CapReassignAny lets the holder reassign a pending step they do not
	// personally hold.
	CapReassignAny Capability = 1 << iota
	// CapArchive lets the holder archive approved records they did not create.
	CapArchive
	// CapViewAudit lets the holder read audit trails of entities they are not
	// part of.
	CapViewAudit
)

// CapabilitySet is a bit set of capabilities.
type CapabilitySet uint32

// Has reports whether the set contains cap.
func (s CapabilitySet) Has(cap Capability) bool {
	return uint32(s)&uint32(cap) != 0
}

// With returns the set extended by cap.
func (s CapabilitySet) With(cap Capability) CapabilitySet {
	return CapabilitySet(uint32(s) | uint32(cap))
}

var roleCapabilities = map[Role]CapabilitySet{
	RoleOwner:   CapabilitySet(CapReassignAny | CapArchive | CapViewAudit),
	RoleCoOwner: CapabilitySet(CapReassignAny | CapArchive | CapViewAudit),
	RoleAdmin:   CapabilitySet(CapReassignAny | CapArchive | CapViewAudit),
	RoleMember:  0,
	RoleGuest:   0,
}

// CapabilitiesForRoles folds a set of role names into one capability set.
// Unknown roles contribute nothing.
func CapabilitiesForRoles(roles []string) CapabilitySet {
	var set CapabilitySet
	for _, r := range roles {
		set |= roleCapabilities[Role(r)]
	}
	return set
}

// VariantPolicy captures the per-variant differences in the state machine.
type VariantPolicy struct {
	Kind EntityKind

	// StagedStatuses: letters distinguish pending_review/pending_approval by
	// the active entry's stage; simple variants use a single pending status.
	StagedStatuses bool

	// CreatorMayReassign lets the entity creator hand off the active step
	// without holding it.
	CreatorMayReassign bool

	// AllowsArchive enables the approved -> archived transition.
	AllowsArchive bool
}

var variantPolicies = map[EntityKind]VariantPolicy{
	KindSpace:   {Kind: KindSpace, StagedStatuses: false, CreatorMayReassign: false, AllowsArchive: false},
	KindCabinet: {Kind: KindCabinet, StagedStatuses: false, CreatorMayReassign: true, AllowsArchive: false},
	KindRecord:  {Kind: KindRecord, StagedStatuses: false, CreatorMayReassign: true, AllowsArchive: true},
	KindLetter:  {Kind: KindLetter, StagedStatuses: true, CreatorMayReassign: false, AllowsArchive: false},
}

// PolicyFor returns the policy for a variant. Callers must validate the kind
// first; unknown kinds get a zero policy that rejects everything stage-based.
func PolicyFor(kind EntityKind) VariantPolicy {
	return variantPolicies[kind]
}

// awaitingStatus computes the status an entity holds while the given entry
// is the next to act.
func (p VariantPolicy) awaitingStatus(next *ChainEntry) Status {
	if !p.StagedStatuses {
		return StatusPending
	}
	if next.Stage == StageApproval {
		return StatusPendingApproval
	}
	return StatusPendingReview
}
