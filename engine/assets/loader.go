package assets

import "github.com/spaghettifunk/vkstage/engine/assets/loaders"

// Loader parses an asset file into its scene graph and buffer sources.
type Loader interface {
	Load(path string) (*loaders.Asset, error)
	Unload(asset *loaders.Asset) error
}
