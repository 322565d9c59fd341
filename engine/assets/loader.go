package assets

import (
	"path/filepath"
	"strings"
)

type AssetType uint8

const (
	AssetTypeNone AssetType = iota
	AssetTypeShader
	AssetTypeImage
	AssetTypeBitmapFont
	AssetTypeSystemFont
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeShader:
		return "shader"
	case AssetTypeImage:
		return "image"
	case AssetTypeBitmapFont:
		return "bitmap font"
	case AssetTypeSystemFont:
		return "system font"
	}
	return "none"
}

// Loader decodes one asset type from disk. params carries type specific
// options and may be nil.
type Loader interface {
	Load(path string, params interface{}) (interface{}, error)
}

// Resource is a loaded asset.
type Resource struct {
	Name     string
	FullPath string
	Type     AssetType
	Data     interface{}
}

// directory is where assets of type t live below the asset root.
func (t AssetType) directory() string {
	switch t {
	case AssetTypeShader:
		return "shaders"
	case AssetTypeImage:
		return "textures"
	case AssetTypeBitmapFont, AssetTypeSystemFont:
		return "fonts"
	}
	return ""
}

func determineAssetType(path string) AssetType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return AssetTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp":
		return AssetTypeImage
	case ".fnt":
		return AssetTypeBitmapFont
	case ".ttf", ".otf":
		return AssetTypeSystemFont
	default:
		return AssetTypeNone
	}
}
