package metadata

// Settings are the per-frame feature flags handed to the renderer.
type Settings struct {
	// Record the subsets on parallel workers instead of the calling goroutine.
	Multithreaded bool `toml:"multithreaded"`
	// Issue one indirect draw per subset instead of one draw per item.
	Indirect bool `toml:"indirect"`
	// Enqueue the recorded command lists. When false the lists are built and
	// dropped, which isolates the CPU cost of recording.
	Submit bool `toml:"submit"`
	VSync  bool `toml:"vsync"`
	// Present without waiting for vertical blank. Ignored when VSync is set.
	AllowTearing bool `toml:"allow_tearing"`
	Animate      bool `toml:"animate"`
}

// DefaultSettings mirrors the benchmark defaults.
func DefaultSettings() Settings {
	return Settings{
		Multithreaded: true,
		Indirect:      false,
		Submit:        true,
		VSync:         false,
		AllowTearing:  false,
		Animate:       true,
	}
}

// Resolve returns a copy where mutually exclusive flags are reconciled:
// vertical sync always wins over tearing. The second result reports whether
// anything had to change.
func (s Settings) Resolve() (Settings, bool) {
	if s.VSync && s.AllowTearing {
		s.AllowTearing = false
		return s, true
	}
	return s, false
}
