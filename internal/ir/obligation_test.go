package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObligationKeyIDFormats(t *testing.T) {
	src := PortKey{Block: "arr1", Port: "elements", Dir: DirOut}
	dst := PortKey{Block: "add1", Port: "a", Dir: DirIn}

	tests := []struct {
		name string
		key  ObligationKey
		want string
	}{
		{
			"missing input source",
			ObligationKey{Kind: NeedsInputSource, Port: dst},
			"missingInputSource:add1.a/in",
		},
		{
			"adapter",
			ObligationKey{Kind: NeedsAdapter, Src: src, Dst: dst},
			"needsAdapter:arr1.elements/out->add1.a/in",
		},
		{
			"cardinality adapter",
			ObligationKey{Kind: NeedsCardinalityAdapter, Src: src, Dst: dst},
			"needsCardinalityAdapter:arr1.elements/out->add1.a/in",
		},
		{
			"cycle break",
			ObligationKey{Kind: NeedsCycleBreak, Src: src, Dst: dst},
			"needsCycleBreak:arr1.elements/out->add1.a/in",
		},
		{
			"payload anchor",
			ObligationKey{Kind: NeedsPayloadAnchor, Var: "p:add1.a/in"},
			"needsPayloadAnchor:p%3Aadd1%2Ea%2Fin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.ID())
		})
	}
}

func TestObligationKeyIDEscapesSeparators(t *testing.T) {
	// Block and port names containing the id's own separator characters
	// cannot collide with the separators themselves.
	weird := PortKey{Block: "a.b:c", Port: "x/y>z", Dir: DirIn}
	id := ObligationKey{Kind: NeedsInputSource, Port: weird}.ID()
	assert.Equal(t, "missingInputSource:a%2Eb%3Ac.x%2Fy%3Ez/in", id)

	// Distinct keys that would collide without escaping stay distinct.
	other := PortKey{Block: "a", Port: "b:c.x/y>z", Dir: DirIn}
	assert.NotEqual(t, id, ObligationKey{Kind: NeedsInputSource, Port: other}.ID())
}

func TestObligationKeyIDDeterministic(t *testing.T) {
	key := ObligationKey{
		Kind: NeedsAdapter,
		Src:  PortKey{Block: "a", Port: "out", Dir: DirOut},
		Dst:  PortKey{Block: "b", Port: "in", Dir: DirIn},
	}
	assert.Equal(t, key.ID(), key.ID())
	assert.Equal(t, "needsAdapter:a.out/out->b.in/in", key.ID())
}

func TestNewObligationStartsOpen(t *testing.T) {
	port := PortKey{Block: "add1", Port: "a", Dir: DirIn}
	ob := NewObligation(
		ObligationKey{Kind: NeedsInputSource, Port: port},
		Anchor{Port: port},
		FactDep{Kind: DepPortResolved, Port: port},
	)

	assert.Equal(t, "missingInputSource:add1.a/in", ob.ID)
	assert.Equal(t, NeedsInputSource, ob.Kind)
	assert.Equal(t, ObligationOpen, ob.Status.State)
	assert.Equal(t, port, ob.Anchor.Port)
	assert.Len(t, ob.Deps, 1)
}
