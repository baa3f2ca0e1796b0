package catalog

import "github.com/patchflow/patchflow/internal/ir"

// Well-known block type names in the builtin catalog. The elaboration
// policies insert these; user graphs may also reference them directly.
const (
	BlockTimeRoot     = "TimeRoot"
	BlockConst        = "Const"
	BlockAdd          = "Add"
	BlockMul          = "Mul"
	BlockArray        = "Array"
	BlockUnitDelay    = "UnitDelay"
	BlockBroadcast    = "Broadcast"
	BlockFloatAnchor  = "FloatAnchor"
	BlockDefaultValue = "DefaultValue"
	BlockIntToFloat   = "IntToFloat"
	BlockFloatToInt   = "FloatToInt"
	BlockBoolToInt    = "BoolToInt"
)

// Builtin returns the built-in block-definition catalog: enough surface
// for authoring small patches and for every synthetic block the policies
// insert. DefaultValue is the polymorphic fallback default source.
func Builtin() *InMemory {
	polyT := TypeTemplate{PayloadVar: "T", UnitVar: "U"}
	return NewInMemory(BlockDefaultValue,
		BlockDef{
			Name:    BlockTimeRoot,
			Outputs: []PortDef{{Name: "time", Type: TypeTemplate{Payload: ir.PayloadTimeRoot}}},
			Card:    CardinalityMeta{Mode: SignalOnly},
		},
		BlockDef{
			Name:    BlockConst,
			Outputs: []PortDef{{Name: "out", Type: polyT}},
			Card:    CardinalityMeta{Mode: SignalOnly},
		},
		BlockDef{
			Name:    BlockDefaultValue,
			Outputs: []PortDef{{Name: "out", Type: polyT}},
			Card:    CardinalityMeta{Mode: SignalOnly},
		},
		BlockDef{
			Name: BlockAdd,
			Inputs: []PortDef{
				{Name: "a", Type: polyT},
				{Name: "b", Type: polyT},
			},
			Outputs: []PortDef{{Name: "out", Type: polyT}},
			Card:    CardinalityMeta{Mode: Preserve, Broadcast: BroadcastZip},
		},
		BlockDef{
			Name: BlockMul,
			Inputs: []PortDef{
				{Name: "a", Type: polyT},
				{Name: "b", Type: polyT},
			},
			Outputs: []PortDef{{Name: "out", Type: polyT}},
			Card:    CardinalityMeta{Mode: Preserve, Broadcast: BroadcastZip},
		},
		BlockDef{
			Name: BlockArray,
			Inputs: []PortDef{
				{Name: "items", Type: polyT, Collect: true},
			},
			Outputs: []PortDef{
				{Name: "elements", Type: polyT},
			},
			Card: CardinalityMeta{Mode: Transform, Domain: "array"},
		},
		BlockDef{
			Name:          BlockUnitDelay,
			Inputs:        []PortDef{{Name: "a", Type: polyT}},
			Outputs:       []PortDef{{Name: "out", Type: polyT}},
			Card:          CardinalityMeta{Mode: Preserve},
			FrameDelaying: true,
		},
		BlockDef{
			Name:    BlockBroadcast,
			Inputs:  []PortDef{{Name: "in", Type: polyT}},
			Outputs: []PortDef{{Name: "out", Type: polyT}},
			Card:    CardinalityMeta{Mode: BroadcastMode},
		},
		BlockDef{
			Name:    BlockFloatAnchor,
			Inputs:  []PortDef{{Name: "in", Type: TypeTemplate{Payload: ir.PayloadFloat}}},
			Outputs: []PortDef{{Name: "out", Type: TypeTemplate{Payload: ir.PayloadFloat}}},
			Card:    CardinalityMeta{Mode: Preserve},
		},
		adapterDef(BlockIntToFloat, ir.PayloadInt, ir.PayloadFloat),
		adapterDef(BlockFloatToInt, ir.PayloadFloat, ir.PayloadInt),
		adapterDef(BlockBoolToInt, ir.PayloadBool, ir.PayloadInt),
	)
}

func adapterDef(name string, from, to ir.PayloadKind) BlockDef {
	return BlockDef{
		Name:    name,
		Inputs:  []PortDef{{Name: "in", Type: TypeTemplate{Payload: from}}},
		Outputs: []PortDef{{Name: "out", Type: TypeTemplate{Payload: to}}},
		Card:    CardinalityMeta{Mode: Preserve},
	}
}

// BuiltinAdapters returns the adapter specs matching the builtin catalog.
func BuiltinAdapters() *AdapterCatalog {
	return NewAdapterCatalog([]AdapterSpec{
		{Block: BlockIntToFloat, From: TypeSig{Payload: ir.PayloadInt}, To: TypeSig{Payload: ir.PayloadFloat}},
		{Block: BlockFloatToInt, From: TypeSig{Payload: ir.PayloadFloat}, To: TypeSig{Payload: ir.PayloadInt}},
		{Block: BlockBoolToInt, From: TypeSig{Payload: ir.PayloadBool}, To: TypeSig{Payload: ir.PayloadInt}},
	})
}

// AnchorBlockFor returns the anchor block type forcing the default concrete
// payload for a payload-anchor obligation, and the payload it forces.
// The builtin default is float; payload anchoring is a correctness-relaxing
// convenience, so callers always pair it with a cheater-adapter diagnostic.
func AnchorBlockFor() (string, ir.PayloadKind) {
	return BlockFloatAnchor, ir.PayloadFloat
}
