//go:build !windows

package native

func platformCatchers() []catcher { return nil }
