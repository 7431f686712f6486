package lane

const (
	defaultMinCapacity  = 1 << 10
	defaultMaxCapacity  = 1 << 16
	defaultBytesPerSlot = 256
)

// SizingPolicy bounds the per-lane buffer capacity derived from the input size.
type SizingPolicy struct {
	// Min is the floor capacity used for small inputs.
	Min int
	// Max is the ceiling capacity for very large inputs.
	Max int
	// BytesPerSlot is how many input bytes earn one buffer slot.
	BytesPerSlot int64
}

// DefaultSizingPolicy returns the policy used when nothing is configured.
func DefaultSizingPolicy() SizingPolicy {
	return SizingPolicy{
		Min:          defaultMinCapacity,
		Max:          defaultMaxCapacity,
		BytesPerSlot: defaultBytesPerSlot,
	}
}

// Capacity computes the per-lane buffer capacity once, before processing starts.
// The result grows with inputBytes and always stays within [Min, Max].
func Capacity(inputBytes int64, lanes int, policy SizingPolicy) int {
	if policy.Min < 1 {
		policy.Min = 1
	}
	if policy.Max < policy.Min {
		policy.Max = policy.Min
	}
	if policy.BytesPerSlot < 1 {
		policy.BytesPerSlot = defaultBytesPerSlot
	}
	if lanes < 1 {
		lanes = 1
	}
	if inputBytes <= 0 {
		return policy.Min
	}

	slots := inputBytes / policy.BytesPerSlot / int64(lanes)
	switch {
	case slots < int64(policy.Min):
		return policy.Min
	case slots > int64(policy.Max):
		return policy.Max
	default:
		return int(slots)
	}
}
