package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainGraph   = "patchflow/graph/v1"
	DomainCatalog = "patchflow/catalog/v1"
	DomainRun     = "patchflow/run/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical hashes already-canonical bytes under the given domain.
func HashCanonical(domain string, canonical []byte) string {
	return hashWithDomain(domain, canonical)
}

// GraphHash computes the content-addressed hash of a graph snapshot.
// Two structurally identical graphs hash identically regardless of the
// order mutations were applied in, because CanonicalSnapshot sorts by id.
func GraphHash(g DraftGraph) (string, error) {
	canonical, err := MarshalCanonical(g.CanonicalSnapshot())
	if err != nil {
		return "", fmt.Errorf("GraphHash: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

// CanonicalSnapshot renders the graph as plain data suitable for
// MarshalCanonical. Obligation status is included: the ledger is part of
// what makes a fixpoint re-runnable.
func (g DraftGraph) CanonicalSnapshot() map[string]any {
	blocks := make([]any, len(g.Blocks))
	for i, b := range g.Blocks {
		m := map[string]any{
			"id":     b.ID,
			"type":   b.Type,
			"origin": originSnapshot(b.Origin),
		}
		if len(b.Params) > 0 {
			m["params"] = b.Params
		}
		blocks[i] = m
	}
	edges := make([]any, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = map[string]any{
			"id":     e.ID,
			"source": e.Source.Block + "." + e.Source.Port,
			"sink":   e.Sink.Block + "." + e.Sink.Port,
			"role":   string(e.Role),
			"origin": originSnapshot(e.Origin),
		}
	}
	obligations := make([]any, len(g.Obligations))
	for i, ob := range g.Obligations {
		m := map[string]any{
			"id":    ob.ID,
			"kind":  string(ob.Kind),
			"state": string(ob.Status.State),
		}
		if len(ob.Status.Artifacts) > 0 {
			arts := make([]any, len(ob.Status.Artifacts))
			for j, a := range ob.Status.Artifacts {
				arts[j] = a
			}
			m["artifacts"] = arts
		}
		if ob.Status.Reason != "" {
			m["reason"] = string(ob.Status.Reason)
		}
		obligations[i] = m
	}
	return map[string]any{
		"blocks":      blocks,
		"edges":       edges,
		"obligations": obligations,
		"revision":    g.Revision,
	}
}

func originSnapshot(o Origin) map[string]any {
	m := map[string]any{"kind": string(o.Kind)}
	if o.ObligationID != "" {
		m["obligation_id"] = o.ObligationID
	}
	if o.Role != "" {
		m["role"] = string(o.Role)
	}
	return m
}
