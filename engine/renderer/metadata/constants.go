package metadata

const (
	// Presentable buffers owned by the swap chain. One is always held by the
	// compositor, so unconstrained frame rates need at least three.
	NUM_SWAP_CHAIN_BUFFERS = 5
	// Depth of the frame ring: frames the CPU may record ahead of the GPU.
	NUM_FRAMES_TO_BUFFER = 3
	// Parallel command generators and therefore command lists per frame.
	NUM_SUBSETS = 4
	// Sprite/font vertex budget of one frame.
	MAX_SPRITE_VERTICES_PER_FRAME = 6 * 1024

	NUM_ASTEROIDS          = 50000
	NUM_UNIQUE_MESHES      = 1000
	NUM_UNIQUE_TEXTURES    = 50
	MESH_MAX_SUBDIV_LEVELS = 3
	TEXTURE_DIM            = 256

	// Placement granularity of constant data in upload memory.
	CONSTANT_ALIGNMENT = 256
	// Vertices in the skybox cube: 6 faces, 2 triangles each.
	SKYBOX_VERTEX_COUNT = 6 * 6
)
