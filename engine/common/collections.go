package common

import "sort"

// StringSet holds names like the groups of a service or the channels a peer subscribed to
type StringSet map[string]struct{}

// NewStringSet creates a StringSet of names
func NewStringSet(names ...string) StringSet {
	ss := StringSet{}
	ss.AddAll(names)
	return ss
}

func (ss StringSet) Contains(name string) bool {
	_, ok := ss[name]
	return ok
}

func (ss StringSet) Add(name string) {
	ss[name] = struct{}{}
}

// AddAll adds every name, duplicates collapse
func (ss StringSet) AddAll(names []string) {
	for _, name := range names {
		ss[name] = struct{}{}
	}
}

func (ss StringSet) Remove(name string) {
	delete(ss, name)
}

// ToList returns the names sorted
func (ss StringSet) ToList() []string {
	names := make([]string, 0, len(ss))
	for name := range ss {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
