//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly

package mem

func lockMemoryPlatform() (ProtectionLevel, error) {
	// Cannot prevent swapping here; memguard wiping still applies.
	return ProtectionPartial, nil
}

func unlockMemoryPlatform() error {
	return nil
}
