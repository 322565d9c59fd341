package assets

import (
	"fmt"

	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/pipelined"
)

// ShaderFile is the compiled module name of one stage, e.g. skybox.frag.spv.
func ShaderFile(kind gpu.PipelineKind, stage string) string {
	return fmt.Sprintf("%s.%s.spv", kind, stage)
}

// LoadShaders reads the vertex and fragment modules of every pipeline kind.
func (am *AssetManager) LoadShaders() (map[gpu.PipelineKind]pipelined.ShaderSource, error) {
	out := make(map[gpu.PipelineKind]pipelined.ShaderSource, gpu.PipelineKindCount)
	for k := gpu.PipelineKind(0); k < gpu.PipelineKindCount; k++ {
		vert, err := am.LoadAsset(ShaderFile(k, "vert"), AssetTypeShader, nil)
		if err != nil {
			return nil, err
		}
		frag, err := am.LoadAsset(ShaderFile(k, "frag"), AssetTypeShader, nil)
		if err != nil {
			return nil, err
		}
		out[k] = pipelined.ShaderSource{
			Vertex:   vert.Data.([]byte),
			Fragment: frag.Data.([]byte),
		}
	}
	return out, nil
}
