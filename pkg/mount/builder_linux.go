package mount

// Mount applies every mount in order and stops at the first failure. The
// targets of mounts already applied are returned so the caller can undo them.
func (b *Builder) Mount() ([]string, error) {
	done := make([]string, 0, len(b.Mounts))
	for i := range b.Mounts {
		if err := b.Mounts[i].Mount(); err != nil {
			return done, err
		}
		done = append(done, b.Mounts[i].Target)
	}
	return done, nil
}
