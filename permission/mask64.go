package permission

// Mask is a set of permission bits.
type Mask uint64

func (m Mask) Has(bit int) bool {
	if bit < 0 || bit >= MaxPermissions {
		return false
	}
	return m&(1<<uint(bit)) != 0
}

func (m *Mask) Set(bit int) {
	if bit < 0 || bit >= MaxPermissions {
		return
	}
	*m |= 1 << uint(bit)
}

func (m *Mask) Clear(bit int) {
	if bit < 0 || bit >= MaxPermissions {
		return
	}
	*m &^= 1 << uint(bit)
}
