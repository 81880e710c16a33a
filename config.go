package tile3d

import (
	"os"

	"gopkg.in/yaml.v3"
)

// TextureFormat selects the encoded MIME family for atlas output, the
// `texture.format` configuration option.
type TextureFormat int

const (
	// FormatWebLossy encodes atlases as lossy WebP.
	FormatWebLossy TextureFormat = iota
	// FormatSupertextured encodes atlases as KTX2.
	FormatSupertextured
	// FormatLossless encodes atlases as PNG.
	FormatLossless
)

// Fallback returns the next format in the priority list for transient
// encoder failures: supertextured -> web-lossy -> lossless.
// The zero value and false are returned once lossless itself fails.
func (f TextureFormat) Fallback() (TextureFormat, bool) {
	switch f {
	case FormatSupertextured:
		return FormatWebLossy, true
	case FormatWebLossy:
		return FormatLossless, true
	default:
		return 0, false
	}
}

// TilingConfig bounds the recursive hierarchy build.
type TilingConfig struct {
	MaxTrianglesPerTile int `yaml:"max_triangles_per_tile"`
	MaxDepth            int `yaml:"max_depth"`
}

// TextureConfig controls atlas repacking.
type TextureConfig struct {
	Enabled bool          `yaml:"enabled"`
	MaxSize int           `yaml:"max_size"`
	Quality int           `yaml:"quality"` // 0-100 codec quality hint
	Format  TextureFormat `yaml:"format"`
}

// CompressionConfig controls GLB mesh-attribute compression, the
// `compression` configuration option.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the full core configuration surface.
type Config struct {
	Tiling      TilingConfig      `yaml:"tiling"`
	Texture     TextureConfig     `yaml:"texture"`
	Compression CompressionConfig `yaml:"compression"`
}

// DefaultConfig returns the baseline tuning values: a triangle budget and
// depth cap sized for city-block-scale photogrammetry tiles, and a
// web-lossy texture format that works without any platform-specific
// decoder.
func DefaultConfig() Config {
	return Config{
		Tiling: TilingConfig{
			MaxTrianglesPerTile: 65000,
			MaxDepth:            6,
		},
		Texture: TextureConfig{
			Enabled: true,
			MaxSize: 2048,
			Quality: 85,
			Format:  FormatWebLossy,
		},
		Compression: CompressionConfig{
			Enabled: false,
		},
	}
}

// LoadConfig reads a YAML configuration file, starting from
// DefaultConfig and overriding any fields the file sets.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, WrapError(KindInput, path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, WrapError(KindInput, path, err)
	}
	return cfg, nil
}
