package flow

// CompositionPreset is the diffusion strength pair sent with synthesis
// requests for a composition mode.
type CompositionPreset struct {
	ControlWeight float64
	AdapterScale  float64
}

var compositionPresets = map[CompositionMode]CompositionPreset{
	CompositionRigid:    {ControlWeight: 0.9, AdapterScale: 0.55},
	CompositionBalanced: {ControlWeight: 0.6, AdapterScale: 0.35},
	CompositionCreative: {ControlWeight: 0.35, AdapterScale: 0.18},
}

// Preset resolves the preset of a mode, falling back to balanced, and clamps
// it into the range the synthesis service accepts.
func (m CompositionMode) Preset() CompositionPreset {
	preset, ok := compositionPresets[m]
	if !ok {
		preset = compositionPresets[CompositionBalanced]
	}
	preset.ControlWeight = clamp(preset.ControlWeight, 0.3, 1.0)
	preset.AdapterScale = clamp(preset.AdapterScale, 0.1, 0.6)
	return preset
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
