package queue

// Discriminator decides whether a Format applies to a message by looking at
// a few fields. It is evaluated before the format parses anything.
type Discriminator interface {
	Match(v View) bool
}

// HasFields matches when all paths exist.
func HasFields(paths ...string) Discriminator {
	return hasFields{paths: paths}
}

type hasFields struct {
	paths []string
}

func (d hasFields) Match(v View) bool {
	for _, p := range d.paths {
		if !v.HasField(p) {
			return false
		}
	}
	return true
}

// FieldEquals matches when the path holds the given string.
func FieldEquals(path, value string) Discriminator {
	return fieldIn{path: path, values: []string{value}}
}

type fieldIn struct {
	path   string
	values []string
}

func (d fieldIn) Match(v View) bool {
	s, ok := v.GetString(d.path)
	if !ok {
		return false
	}
	for _, want := range d.values {
		if s == want {
			return true
		}
	}
	return false
}

// FieldAtLeast matches when the path holds a number no lower than least.
func FieldAtLeast(path string, least int64) Discriminator {
	return fieldAtLeast{path: path, least: least}
}

type fieldAtLeast struct {
	path  string
	least int64
}

func (d fieldAtLeast) Match(v View) bool {
	n, ok := v.GetInt(d.path)
	return ok && n >= d.least
}

// Not inverts a discriminator.
func Not(d Discriminator) Discriminator {
	return not{d: d}
}

type not struct {
	d Discriminator
}

func (n not) Match(v View) bool { return !n.d.Match(v) }

// And matches when all discriminators match.
func And(ds ...Discriminator) Discriminator {
	return and{ds: ds}
}

type and struct {
	ds []Discriminator
}

func (d and) Match(v View) bool {
	for _, disc := range d.ds {
		if !disc.Match(v) {
			return false
		}
	}
	return true
}

// Or matches when any discriminator matches.
func Or(ds ...Discriminator) Discriminator {
	return or{ds: ds}
}

type or struct {
	ds []Discriminator
}

func (d or) Match(v View) bool {
	for _, disc := range d.ds {
		if disc.Match(v) {
			return true
		}
	}
	return false
}
