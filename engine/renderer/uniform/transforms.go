package uniform

import (
	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/spaghettifunk/vkstage/engine/math"
)

type visit struct {
	node   int
	parent math.Mat4
}

// ComposeTransforms walks every root scene depth first, leftmost child
// first, and returns the world transform of each mesh indexed by mesh. Meshes
// no node instances keep the identity. When two nodes share a mesh the last
// one visited wins.
func ComposeTransforms(doc *scene.Document) ([]math.Mat4, error) {
	out := make([]math.Mat4, len(doc.Meshes))
	for i := range out {
		out[i] = math.NewMat4Identity()
	}

	var stack []visit
	for _, s := range doc.RootScenes() {
		// Scenes may share nodes; only a repeat within one scene is an error.
		visited := make([]bool, len(doc.Nodes))
		for i := len(s.Nodes) - 1; i >= 0; i-- {
			stack = append(stack, visit{node: s.Nodes[i], parent: math.NewMat4Identity()})
		}

		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if v.node < 0 || v.node >= len(doc.Nodes) {
				return nil, core.NewAssetError(core.ErrDataIntegrity, "transforms", "node %d does not exist", v.node)
			}
			if visited[v.node] {
				return nil, core.NewAssetError(core.ErrDataIntegrity, "transforms", "node %d is reached twice", v.node)
			}
			visited[v.node] = true

			node := doc.Nodes[v.node]
			world := localTransform(node).Mul(v.parent)
			if node.Mesh != nil {
				if *node.Mesh < 0 || *node.Mesh >= len(out) {
					return nil, core.NewAssetError(core.ErrDataIntegrity, "transforms", "node %d references mesh %d", v.node, *node.Mesh)
				}
				out[*node.Mesh] = world
			}
			for i := len(node.Children) - 1; i >= 0; i-- {
				stack = append(stack, visit{node: node.Children[i], parent: world})
			}
		}
	}
	return out, nil
}

// localTransform returns the node matrix, or its translation, rotation and
// scale with absent parts left at identity.
func localTransform(n scene.Node) math.Mat4 {
	if n.Matrix != nil {
		return math.NewMat4FromSlice(*n.Matrix)
	}
	t := math.TransformCreate()
	position, rotation, scale := t.Position, t.Rotation, t.Scale
	if n.Translation != nil {
		position = math.NewVec3(n.Translation[0], n.Translation[1], n.Translation[2])
	}
	if n.Rotation != nil {
		rotation = math.Quaternion{X: n.Rotation[0], Y: n.Rotation[1], Z: n.Rotation[2], W: n.Rotation[3]}
	}
	if n.Scale != nil {
		scale = math.NewVec3(n.Scale[0], n.Scale[1], n.Scale[2])
	}
	t.SetPositionRotationScale(position, rotation, scale)
	return t.GetLocal()
}
