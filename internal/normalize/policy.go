package normalize

import (
	"fmt"

	"github.com/patchflow/patchflow/internal/catalog"
	"github.com/patchflow/patchflow/internal/ir"
)

// PolicyContext bundles the read-only state a policy may consult. Policies
// never mutate the graph; they return plans for the driver to apply.
type PolicyContext struct {
	Graph    ir.DraftGraph
	Catalog  catalog.Catalog
	Adapters *catalog.AdapterCatalog
	Facts    ir.TypeFacts
}

// PolicyOutcome is a policy's verdict on one obligation. Exactly one of
// Plan and Blocked is set; the zero value means "defer to a later
// iteration".
type PolicyOutcome struct {
	Plan    *ElaborationPlan
	Blocked *ir.ObligationStatus
}

func planOutcome(p ElaborationPlan) PolicyOutcome {
	return PolicyOutcome{Plan: &p}
}

func blockedOutcome(code ir.BlockedCode, msg string) PolicyOutcome {
	return PolicyOutcome{Blocked: &ir.ObligationStatus{
		State:   ir.ObligationBlocked,
		Reason:  code,
		Message: msg,
	}}
}

// Discharge dispatches an open obligation to its policy. The obligation
// kind enum is closed; an unknown kind is a contract violation, not a
// blocked outcome.
func Discharge(ob ir.Obligation, ctx PolicyContext) (PolicyOutcome, error) {
	switch ob.Kind {
	case ir.NeedsInputSource:
		return dischargeDefaultSource(ob, ctx), nil
	case ir.NeedsAdapter:
		return dischargeAdapter(ob, ctx), nil
	case ir.NeedsCardinalityAdapter:
		return dischargeCardinalityAdapter(ob, ctx), nil
	case ir.NeedsCycleBreak:
		return dischargeCycleBreak(ob, ctx), nil
	case ir.NeedsPayloadAnchor:
		return dischargePayloadAnchor(ob, ctx), nil
	}
	return PolicyOutcome{}, &ContractError{
		Code:         ErrCodeUnknownObligation,
		Message:      fmt.Sprintf("no policy for obligation kind %q", ob.Kind),
		ObligationID: ob.ID,
	}
}

// elabBlockID and elabEdgeID derive artifact ids from the obligation id.
// Obligation ids are deterministic, so artifact ids are too.
func elabBlockID(obligationID, suffix string) string {
	return "elab:" + obligationID + ":" + suffix
}

func elabEdgeID(obligationID, suffix string) string {
	return "elab:" + obligationID + ":" + suffix
}

// dischargeDefaultSource fills an unconnected input with a synthetic
// source. Time-typed inputs wire to an existing time root instead of
// minting a fresh source: a patch has one clock.
func dischargeDefaultSource(ob ir.Obligation, ctx PolicyContext) PolicyOutcome {
	port := ob.Anchor.Port
	if ctx.Graph.Connected(port) {
		// The port gained a wire after the obligation was seeded. The seeding
		// contract says this cannot happen; record it rather than guess.
		return blockedOutcome(ir.BlockedUnexpectedConnect,
			fmt.Sprintf("input %s connected after obligation was seeded", port))
	}
	block, ok := ctx.Graph.BlockByID(port.Block)
	if !ok {
		return blockedOutcome(ir.BlockedUnknownBlockType,
			fmt.Sprintf("block %q missing from graph", port.Block))
	}
	def, ok := ctx.Catalog.Lookup(block.Type)
	if !ok {
		return blockedOutcome(ir.BlockedUnknownBlockType,
			fmt.Sprintf("block type %q not in catalog", block.Type))
	}
	portDef, ok := def.FindInput(port.Port)
	if !ok {
		return blockedOutcome(ir.BlockedUnknownBlockType,
			fmt.Sprintf("port %q not declared on block type %q", port.Port, block.Type))
	}

	if portDef.Type.PayloadVar == "" && portDef.Type.Payload == ir.PayloadTimeRoot {
		return wireTimeRoot(ob, ctx, port)
	}

	srcType := portDef.DefaultSource
	if srcType == "" {
		var okFallback bool
		srcType, okFallback = ctx.Catalog.FallbackSource()
		if !okFallback {
			return blockedOutcome(ir.BlockedNoDefaultSource,
				fmt.Sprintf("no default source for input %s", port))
		}
	}
	srcDef, ok := ctx.Catalog.Lookup(srcType)
	if !ok || len(srcDef.Outputs) == 0 {
		return blockedOutcome(ir.BlockedNoDefaultSource,
			fmt.Sprintf("default source type %q unusable", srcType))
	}

	srcID := elabBlockID(ob.ID, "src")
	return planOutcome(ElaborationPlan{
		ObligationID: ob.ID,
		AddBlocks: []ir.DraftBlock{{
			ID:     srcID,
			Type:   srcType,
			Origin: ir.ElabOrigin(ob.ID, ir.RoleDefaultSource),
		}},
		AddEdges: []ir.DraftEdge{{
			ID:     elabEdgeID(ob.ID, "wire"),
			Source: ir.EdgeEnd{Block: srcID, Port: srcDef.Outputs[0].Name},
			Sink:   ir.EdgeEnd{Block: port.Block, Port: port.Port},
			Role:   ir.EdgeDefaultWire,
			Origin: ir.ElabOrigin(ob.ID, ir.RoleDefaultSource),
		}},
	})
}

// wireTimeRoot connects a time-typed input to the first existing time-root
// block, by id. No time root in the graph is a blocked outcome, never a
// reason to mint one: the host owns clock creation.
func wireTimeRoot(ob ir.Obligation, ctx PolicyContext, port ir.PortKey) PolicyOutcome {
	for _, b := range ctx.Graph.Blocks {
		def, ok := ctx.Catalog.Lookup(b.Type)
		if !ok {
			continue
		}
		for _, out := range def.Outputs {
			if out.Type.PayloadVar == "" && out.Type.Payload == ir.PayloadTimeRoot {
				return planOutcome(ElaborationPlan{
					ObligationID: ob.ID,
					AddEdges: []ir.DraftEdge{{
						ID:     elabEdgeID(ob.ID, "wire"),
						Source: ir.EdgeEnd{Block: b.ID, Port: out.Name},
						Sink:   ir.EdgeEnd{Block: port.Block, Port: port.Port},
						Role:   ir.EdgeDefaultWire,
						Origin: ir.ElabOrigin(ob.ID, ir.RoleDefaultSource),
					}},
				})
			}
		}
	}
	return blockedOutcome(ir.BlockedNoTimeRoot,
		fmt.Sprintf("input %s needs a time root and the graph has none", port))
}

// dischargeAdapter replaces a mismatched wire with an adapter chain. An
// empty chain discharges with no structure, but only after re-checking
// assignability: chains are searched over (payload, unit) signatures, so
// equal signatures can still disagree on an extent axis no adapter fixes.
func dischargeAdapter(ob ir.Obligation, ctx PolicyContext) PolicyOutcome {
	edge, ok := ctx.Graph.EdgeByID(ob.Anchor.EdgeID)
	if !ok {
		// The anchored wire is gone; nothing left to adapt.
		return planOutcome(ElaborationPlan{ObligationID: ob.ID})
	}
	srcHint, okS := ctx.Facts.Lookup(edge.SourceKey())
	snkHint, okD := ctx.Facts.Lookup(edge.SinkKey())
	if !okS || !okD || srcHint.State != ir.HintOK || snkHint.State != ir.HintOK {
		return PolicyOutcome{}
	}

	chain, found := ctx.Adapters.Chain(srcHint.Type, snkHint.Type)
	if !found {
		srcSig, _ := catalog.TypeSigOf(srcHint.Type)
		snkSig, _ := catalog.TypeSigOf(snkHint.Type)
		return blockedOutcome(ir.BlockedNoAdapterChain,
			fmt.Sprintf("no adapter chain from %s to %s", srcSig, snkSig))
	}
	if len(chain) == 0 {
		if ctx.Adapters.Assignable(srcHint.Type, snkHint.Type) {
			return planOutcome(ElaborationPlan{ObligationID: ob.ID})
		}
		srcSig, _ := catalog.TypeSigOf(srcHint.Type)
		snkSig, _ := catalog.TypeSigOf(snkHint.Type)
		return blockedOutcome(ir.BlockedNoAdapterChain,
			fmt.Sprintf("no adapter reconciles %s with %s: extents differ", srcSig, snkSig))
	}

	plan := ElaborationPlan{ObligationID: ob.ID}
	prev := edge.Source
	var edges []ir.DraftEdge
	for i, blockType := range chain {
		def, ok := ctx.Catalog.Lookup(blockType)
		if !ok || len(def.Inputs) == 0 || len(def.Outputs) == 0 {
			return blockedOutcome(ir.BlockedNoAdapterChain,
				fmt.Sprintf("adapter type %q unusable", blockType))
		}
		id := elabBlockID(ob.ID, fmt.Sprintf("a%d", i))
		plan.AddBlocks = append(plan.AddBlocks, ir.DraftBlock{
			ID:     id,
			Type:   blockType,
			Origin: ir.ElabOrigin(ob.ID, ir.RoleAdapter),
		})
		edges = append(edges, ir.DraftEdge{
			ID:     elabEdgeID(ob.ID, fmt.Sprintf("w%d", i)),
			Source: prev,
			Sink:   ir.EdgeEnd{Block: id, Port: def.Inputs[0].Name},
			Role:   ir.EdgeImplicitCoerce,
			Origin: ir.ElabOrigin(ob.ID, ir.RoleAdapter),
		})
		prev = ir.EdgeEnd{Block: id, Port: def.Outputs[0].Name}
	}
	edges = append(edges, ir.DraftEdge{
		ID:     elabEdgeID(ob.ID, fmt.Sprintf("w%d", len(chain))),
		Source: prev,
		Sink:   edge.Sink,
		Role:   ir.EdgeImplicitCoerce,
		Origin: ir.ElabOrigin(ob.ID, ir.RoleAdapter),
	})
	plan.Replacements = []EdgeReplacement{{RemoveEdgeID: edge.ID, AddEdges: edges}}
	return planOutcome(plan)
}

// dischargePayloadAnchor splices the anchor block onto the anchored wire,
// forcing the unresolved payload group to the default concrete payload.
// The accompanying diagnostic is mandatory: anchoring trades soundness for
// progress and the author must see that.
func dischargePayloadAnchor(ob ir.Obligation, ctx PolicyContext) PolicyOutcome {
	edge, ok := ctx.Graph.EdgeByID(ob.Anchor.EdgeID)
	if !ok {
		// The anchored wire was replaced by another elaboration this
		// iteration. Re-select a wire still carrying the variable; if the
		// group resolved some other way, the obligation is moot.
		edge, ok = edgeForPayloadVar(ctx, ob.Anchor.Var)
		if !ok {
			if payloadVarResolved(ctx, ob.Anchor.Var) {
				return planOutcome(ElaborationPlan{ObligationID: ob.ID})
			}
			return PolicyOutcome{}
		}
	}
	anchorType, payload := catalog.AnchorBlockFor()
	def, ok := ctx.Catalog.Lookup(anchorType)
	if !ok || len(def.Inputs) == 0 || len(def.Outputs) == 0 {
		return blockedOutcome(ir.BlockedNoDefaultSource,
			fmt.Sprintf("anchor type %q unusable", anchorType))
	}
	plan := spliceBlock(ob, edge, anchorType, def, ir.RoleAnchor)
	plan.Diags = []ir.Diagnostic{{
		Kind:    ir.DiagStructural,
		SubKind: ir.SubCheaterAdapterUsed,
		Ports:   []string{edge.SourceKey().String(), edge.SinkKey().String()},
		Edges:   []string{edge.ID},
		Message: fmt.Sprintf("payload defaulted to %s; add a typed source to pin it explicitly", payload),
	}}
	return planOutcome(plan)
}

// edgeForPayloadVar returns the first wire, by id, whose endpoints both
// carry the given unresolved payload variable.
func edgeForPayloadVar(ctx PolicyContext, root ir.VarID) (ir.DraftEdge, bool) {
	for _, e := range ctx.Graph.Edges {
		if portCarriesPayloadVar(ctx, e.SourceKey(), root) && portCarriesPayloadVar(ctx, e.SinkKey(), root) {
			return e, true
		}
	}
	return ir.DraftEdge{}, false
}

func portCarriesPayloadVar(ctx PolicyContext, k ir.PortKey, root ir.VarID) bool {
	hint, ok := ctx.Facts.Lookup(k)
	return ok && hint.Type.Payload.IsVar() && hint.Type.Payload.Var() == root
}

// payloadVarResolved reports whether no recorded port still carries the
// variable unresolved.
func payloadVarResolved(ctx PolicyContext, root ir.VarID) bool {
	for _, k := range ctx.Facts.Keys() {
		if portCarriesPayloadVar(ctx, k, root) {
			return false
		}
	}
	return true
}

// dischargeCardinalityAdapter splices a broadcast block onto the boundary
// wire between a signal-side source and a field-side zip sink.
func dischargeCardinalityAdapter(ob ir.Obligation, ctx PolicyContext) PolicyOutcome {
	edge, ok := ctx.Graph.EdgeByID(ob.Anchor.EdgeID)
	if !ok {
		return planOutcome(ElaborationPlan{ObligationID: ob.ID})
	}
	def, ok := ctx.Catalog.Lookup(catalog.BlockBroadcast)
	if !ok || len(def.Inputs) == 0 || len(def.Outputs) == 0 {
		return blockedOutcome(ir.BlockedNoDefaultSource,
			fmt.Sprintf("broadcast type %q unusable", catalog.BlockBroadcast))
	}
	plan := spliceBlock(ob, edge, catalog.BlockBroadcast, def, ir.RoleBroadcast)
	plan.Diags = []ir.Diagnostic{{
		Kind:    ir.DiagStructural,
		SubKind: ir.SubCardinalityAdapter,
		Ports:   []string{edge.SourceKey().String(), edge.SinkKey().String()},
		Edges:   []string{edge.ID},
		Message: "broadcast inserted to lift a signal into a field context",
	}}
	return planOutcome(plan)
}

// dischargeCycleBreak splices a frame delay onto the selected cut wire.
func dischargeCycleBreak(ob ir.Obligation, ctx PolicyContext) PolicyOutcome {
	edge, ok := ctx.Graph.EdgeByID(ob.Anchor.EdgeID)
	if !ok {
		return planOutcome(ElaborationPlan{ObligationID: ob.ID})
	}
	def, ok := ctx.Catalog.Lookup(catalog.BlockUnitDelay)
	if !ok || len(def.Inputs) == 0 || len(def.Outputs) == 0 {
		return blockedOutcome(ir.BlockedNoDefaultSource,
			fmt.Sprintf("delay type %q unusable", catalog.BlockUnitDelay))
	}
	plan := spliceBlock(ob, edge, catalog.BlockUnitDelay, def, ir.RoleCycleBreak)
	plan.Diags = []ir.Diagnostic{{
		Kind:    ir.DiagStructural,
		SubKind: ir.SubCycleBreakInserted,
		Ports:   []string{edge.SourceKey().String(), edge.SinkKey().String()},
		Edges:   []string{edge.ID},
		Message: "frame delay inserted to break a same-frame cycle",
	}}
	return planOutcome(plan)
}

// spliceBlock builds the remove-then-add plan inserting one single-input,
// single-output block in the middle of an existing wire.
func spliceBlock(ob ir.Obligation, edge ir.DraftEdge, blockType string, def catalog.BlockDef, role ir.ElabRole) ElaborationPlan {
	id := elabBlockID(ob.ID, "blk")
	return ElaborationPlan{
		ObligationID: ob.ID,
		AddBlocks: []ir.DraftBlock{{
			ID:     id,
			Type:   blockType,
			Origin: ir.ElabOrigin(ob.ID, role),
		}},
		Replacements: []EdgeReplacement{{
			RemoveEdgeID: edge.ID,
			AddEdges: []ir.DraftEdge{
				{
					ID:     elabEdgeID(ob.ID, "w0"),
					Source: edge.Source,
					Sink:   ir.EdgeEnd{Block: id, Port: def.Inputs[0].Name},
					Role:   ir.EdgeInternalHelper,
					Origin: ir.ElabOrigin(ob.ID, role),
				},
				{
					ID:     elabEdgeID(ob.ID, "w1"),
					Source: ir.EdgeEnd{Block: id, Port: def.Outputs[0].Name},
					Sink:   edge.Sink,
					Role:   ir.EdgeInternalHelper,
					Origin: ir.ElabOrigin(ob.ID, role),
				},
			},
		}},
	}
}
