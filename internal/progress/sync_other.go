//go:build !unix

package progress

// syncDirectory is a no-op where directories cannot be fsynced.
func syncDirectory(string) error { return nil }
