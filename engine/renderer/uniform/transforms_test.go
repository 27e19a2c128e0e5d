package uniform

import (
	"testing"

	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/spaghettifunk/vkstage/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestComposeTransformsAccumulatesTranslations(t *testing.T) {
	doc := &scene.Document{
		Meshes: make([]scene.Mesh, 1),
		Nodes: []scene.Node{
			{Translation: &[3]float32{1, 0, 0}, Children: []int{1}},
			{Translation: &[3]float32{0, 2, 0}, Children: []int{2}},
			{Translation: &[3]float32{0, 0, 3}, Mesh: ptr(0)},
		},
		Scenes: []scene.Scene{{Nodes: []int{0}}},
		Scene:  0,
	}

	out, err := ComposeTransforms(doc)
	require.NoError(t, err)
	assert.Equal(t, math.NewVec3(1, 2, 3), out[0].Translation())
}

func TestComposeTransformsParentRotationAppliesToChild(t *testing.T) {
	q := math.NewQuatFromAxisAngle(math.NewVec3(0, 0, 1), math.DegToRad(90), true)
	doc := &scene.Document{
		Meshes: make([]scene.Mesh, 1),
		Nodes: []scene.Node{
			{Rotation: &[4]float32{q.X, q.Y, q.Z, q.W}, Children: []int{1}},
			{Translation: &[3]float32{1, 0, 0}, Mesh: ptr(0)},
		},
		Scenes: []scene.Scene{{Nodes: []int{0}}},
		Scene:  0,
	}

	out, err := ComposeTransforms(doc)
	require.NoError(t, err)
	assert.True(t, out[0].Translation().Compare(math.NewVec3(0, 1, 0), 1e-6), "got %v", out[0].Translation())
}

func TestComposeTransformsVisitsSiblingsInOrder(t *testing.T) {
	// Both children instance mesh 0; the later sibling overwrites the first.
	doc := &scene.Document{
		Meshes: make([]scene.Mesh, 2),
		Nodes: []scene.Node{
			{Children: []int{1, 2}},
			{Translation: &[3]float32{1, 0, 0}, Mesh: ptr(0)},
			{Translation: &[3]float32{2, 0, 0}, Mesh: ptr(0)},
		},
		Scenes: []scene.Scene{{Nodes: []int{0}}},
		Scene:  0,
	}

	out, err := ComposeTransforms(doc)
	require.NoError(t, err)
	assert.Equal(t, math.NewVec3(2, 0, 0), out[0].Translation())
	assert.Equal(t, math.NewMat4Identity(), out[1], "uninstanced mesh keeps identity")
}

func TestComposeTransformsMatrixWins(t *testing.T) {
	m := math.NewMat4Translation(math.NewVec3(5, 0, 0)).Data
	doc := &scene.Document{
		Meshes: make([]scene.Mesh, 1),
		Nodes: []scene.Node{
			{Matrix: &m, Translation: &[3]float32{9, 9, 9}, Mesh: ptr(0)},
		},
		Scenes: []scene.Scene{{Nodes: []int{0}}},
		Scene:  -1,
	}

	out, err := ComposeTransforms(doc)
	require.NoError(t, err)
	assert.Equal(t, math.NewVec3(5, 0, 0), out[0].Translation())
}

func TestComposeTransformsRejectsSharedNodes(t *testing.T) {
	doc := &scene.Document{
		Nodes: []scene.Node{
			{Children: []int{2}},
			{Children: []int{2}},
			{},
		},
		Scenes: []scene.Scene{{Nodes: []int{0, 1}}},
		Scene:  0,
	}

	_, err := ComposeTransforms(doc)
	assert.ErrorIs(t, err, core.ErrDataIntegrity)

	doc.Nodes[2].Children = []int{0}
	doc.Scenes[0].Nodes = []int{0}
	_, err = ComposeTransforms(doc)
	assert.ErrorIs(t, err, core.ErrDataIntegrity, "cycle")
}

func TestComposeTransformsScenesMayShareNodes(t *testing.T) {
	doc := &scene.Document{
		Meshes: make([]scene.Mesh, 1),
		Nodes: []scene.Node{
			{Translation: &[3]float32{1, 0, 0}, Mesh: ptr(0)},
		},
		Scenes: []scene.Scene{{Nodes: []int{0}}, {Nodes: []int{0}}},
		Scene:  core.NoIndex,
	}

	out, err := ComposeTransforms(doc)
	require.NoError(t, err)
	assert.Equal(t, math.NewVec3(1, 0, 0), out[0].Translation())
}
