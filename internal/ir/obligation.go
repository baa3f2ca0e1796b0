package ir

import (
	"slices"
	"strings"
)

// ObligationKind enumerates the closed set of deferred-work kinds. Policies
// dispatch on this enum exhaustively; there is no runtime policy registry.
type ObligationKind string

const (
	NeedsInputSource        ObligationKind = "missingInputSource"
	NeedsAdapter            ObligationKind = "needsAdapter"
	NeedsCardinalityAdapter ObligationKind = "needsCardinalityAdapter"
	NeedsCycleBreak         ObligationKind = "needsCycleBreak"
	NeedsPayloadAnchor      ObligationKind = "needsPayloadAnchor"
)

// ObligationState is the ledger status of an obligation.
type ObligationState string

const (
	ObligationOpen       ObligationState = "open"
	ObligationDischarged ObligationState = "discharged"
	ObligationBlocked    ObligationState = "blocked"
)

// BlockedCode categorizes why a policy declared an obligation permanently
// unsatisfiable. Blocked is a recorded outcome, not an error.
type BlockedCode string

const (
	BlockedNoAdapterChain    BlockedCode = "NO_ADAPTER_CHAIN"
	BlockedNoTimeRoot        BlockedCode = "NO_TIME_ROOT"
	BlockedNoDefaultSource   BlockedCode = "NO_DEFAULT_SOURCE"
	BlockedUnexpectedConnect BlockedCode = "UNEXPECTED_CONNECTED_INPUT"
	BlockedUnknownBlockType  BlockedCode = "UNKNOWN_BLOCK_TYPE"
)

// ObligationStatus records the ledger state plus the artifacts of a
// discharge or the reason for a block.
type ObligationStatus struct {
	State     ObligationState `json:"state"`
	Artifacts []string        `json:"artifacts,omitempty"` // inserted block/edge ids
	Reason    BlockedCode     `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Anchor names what an obligation concerns. Exactly the fields relevant to
// the kind are set; unused fields stay zero.
type Anchor struct {
	Port   PortKey `json:"port,omitempty"`
	EdgeID string  `json:"edge_id,omitempty"`
	Var    VarID   `json:"var,omitempty"`
}

// FactDepKind enumerates dependency kinds an obligation may declare.
type FactDepKind string

// DepPortResolved requires the named port to have an ok type hint before
// the obligation's policy may run.
const DepPortResolved FactDepKind = "portResolved"

// FactDep is a fact that must hold before a policy may be invoked.
type FactDep struct {
	Kind FactDepKind `json:"kind"`
	Port PortKey     `json:"port"`
}

// Obligation is a deferred, idempotent unit of normalization work. Identity
// is deterministic: the id is a pure function of the semantic target (see
// ObligationKey), which is what makes re-derivation deduplicate.
type Obligation struct {
	ID     string           `json:"id"`
	Kind   ObligationKind   `json:"kind"`
	Anchor Anchor           `json:"anchor"`
	Status ObligationStatus `json:"status"`
	Deps   []FactDep        `json:"deps,omitempty"`
}

func (ob Obligation) clone() Obligation {
	out := ob
	out.Status.Artifacts = slices.Clone(ob.Status.Artifacts)
	out.Deps = slices.Clone(ob.Deps)
	return out
}

// ObligationKey is the typed composite key an obligation id is computed
// from. Using a struct instead of string interpolation keeps component
// separators from colliding with characters inside block or port names.
type ObligationKey struct {
	Kind ObligationKind
	Port PortKey // missingInputSource, needsPayloadAnchor target port
	Src  PortKey // edge-anchored kinds
	Dst  PortKey
	Var  VarID // needsPayloadAnchor
}

// ID renders the key as a stable, human-readable obligation id, e.g.
// "needsAdapter:arr1.elements/out->add1.a/in". Name components are
// percent-escaped so the separators cannot collide.
func (k ObligationKey) ID() string {
	var b strings.Builder
	b.WriteString(string(k.Kind))
	b.WriteByte(':')
	switch k.Kind {
	case NeedsInputSource:
		b.WriteString(escapePortKey(k.Port))
	case NeedsAdapter, NeedsCardinalityAdapter, NeedsCycleBreak:
		b.WriteString(escapePortKey(k.Src))
		b.WriteString("->")
		b.WriteString(escapePortKey(k.Dst))
	case NeedsPayloadAnchor:
		b.WriteString(escapeIDPart(string(k.Var)))
	default:
		b.WriteString(escapePortKey(k.Port))
	}
	return b.String()
}

func escapePortKey(k PortKey) string {
	return escapeIDPart(k.Block) + "." + escapeIDPart(k.Port) + "/" + string(k.Dir)
}

var idPartEscaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	".", "%2E",
	"/", "%2F",
	">", "%3E",
)

func escapeIDPart(s string) string {
	return idPartEscaper.Replace(s)
}

// NewObligation creates an open obligation from its key, anchor, and
// fact-dependencies.
func NewObligation(key ObligationKey, anchor Anchor, deps ...FactDep) Obligation {
	return Obligation{
		ID:     key.ID(),
		Kind:   key.Kind,
		Anchor: anchor,
		Status: ObligationStatus{State: ObligationOpen},
		Deps:   deps,
	}
}
