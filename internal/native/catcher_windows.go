//go:build windows

package native

func platformCatchers() []catcher {
	return []catcher{catches[*AviWriterFatalException](PrefixAviWriterFatal)}
}
