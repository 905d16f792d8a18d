package module

import (
	"sort"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/module/types"
)

// Scope holds the artifacts resolved for one module, keyed by group:name.
// A scope only ever contains one version of an artifact.
type Scope struct {
	module    string
	artifacts map[string]string
	versions  map[string]string
}

func newScope(module string) *Scope {
	return &Scope{
		module:    module,
		artifacts: map[string]string{},
		versions:  map[string]string{},
	}
}

func (s *Scope) bind(dep types.ModuleDependency, path string) {
	key := dep.Group + ":" + dep.Name
	s.artifacts[key] = path
	s.versions[key] = dep.Version
}

// Module returns the name of the owning module
func (s *Scope) Module() string {
	return s.module
}

// Lookup returns the artifact path of group:name
func (s *Scope) Lookup(group, name string) (path string, ok bool) {
	path, ok = s.artifacts[group+":"+name]
	return
}

// Version returns the bound version of group:name
func (s *Scope) Version(group, name string) string {
	return s.versions[group+":"+name]
}

// Paths returns the sorted artifact paths of the scope
func (s *Scope) Paths() []string {
	paths := make([]string, 0, len(s.artifacts))
	for _, p := range s.artifacts {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of artifacts
func (s *Scope) Len() int {
	return len(s.artifacts)
}
