package sandbox

// guestMemory is the subset of the guest's linear memory the host functions
// need. wazero's api.Memory satisfies it; tests substitute a fixed buffer.
//
// All access is by absolute byte offset and length. Offsets are never held
// across host calls because the guest may grow its memory between calls.
type guestMemory interface {
	// Read returns byteCount bytes at offset, or ok=false when the range is
	// out of bounds.
	Read(offset, byteCount uint32) ([]byte, bool)

	// Write copies v to offset, returning false when the range is out of
	// bounds.
	Write(offset uint32, v []byte) bool
}

// readString decodes a guest-provided (ptr, len) pair. Returns ok=false when
// the range does not fit in guest memory.
func readString(mem guestMemory, ptr, length uint32) (string, bool) {
	if mem == nil {
		return "", false
	}
	buf, ok := mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	// Copy before the guest can touch the backing slice again.
	return string(buf), true
}

// writeBounded copies data into guest memory at ptr if it fits within max
// bytes, returning the byte count written. Truncation is never silent: when
// data does not fit, nothing is written and -1 is returned.
func writeBounded(mem guestMemory, ptr, max uint32, data []byte) int32 {
	if mem == nil {
		return -1
	}
	if uint32(len(data)) > max {
		return -1
	}
	if !mem.Write(ptr, data) {
		return -1
	}
	return int32(len(data))
}

// writeTruncated copies data into guest memory at ptr, truncated to at most
// max bytes. Used by get_input, whose contract is truncation rather than
// signaling.
func writeTruncated(mem guestMemory, ptr, max uint32, data []byte) {
	if mem == nil {
		return
	}
	if uint32(len(data)) > max {
		data = data[:max]
	}
	mem.Write(ptr, data)
}
