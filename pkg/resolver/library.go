package resolver

// Library is a discovered native library installation as reported by a
// prober, i.e. the directories and link lines needed to compile against it.
type Library struct {
	IncludeDirs []string // header search paths
	LinkDirs    []string // library search paths
	Libs        []string // library names, without the -l prefix
	Static      bool     // true if the probe resolved static archives
}

// Directives renders the probe result into link directives, search paths
// first. The mode qualifier reflects what the prober reported, not the
// resolver's own static override.
func (l *Library) Directives() []Directive {
	res := make([]Directive, 0, len(l.LinkDirs)+len(l.Libs))
	for _, dir := range l.LinkDirs {
		res = append(res, LinkSearch(dir))
	}
	mode := LinkDynamic
	if l.Static {
		mode = LinkStatic
	}
	for _, lib := range l.Libs {
		res = append(res, LinkLib(mode, lib))
	}
	return res
}
