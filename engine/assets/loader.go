package assets

import "github.com/spaghettifunk/vkframe/engine/assets/loaders"

type Loader interface {
	Load(path string) (*loaders.Resource, error)
}
