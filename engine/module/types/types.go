// Package types holds the module descriptor types shared by the module provider and the event bus.
package types

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
)

// ModuleLifeCycle is the lifecycle state of a module
type ModuleLifeCycle string

// Module lifecycle states
const (
	UNLOADED ModuleLifeCycle = "UNLOADED"
	LOADED   ModuleLifeCycle = "LOADED"
	STARTED  ModuleLifeCycle = "STARTED"
	STOPPED  ModuleLifeCycle = "STOPPED"
)

// ModuleRepository is a named maven style repository
type ModuleRepository struct {
	Name string
	URL  string
}

// ModuleDependency is the coordinate of an artifact a module needs
type ModuleDependency struct {
	// Repository names one of the descriptor repositories, URL overrides it with a direct download
	Repository string
	URL        string
	Group      string
	Name       string
	Version    string
	Checksum   string
}

// Key is the artifact cache key group:name:version
func (md ModuleDependency) Key() string {
	return md.Group + ":" + md.Name + ":" + md.Version
}

func (md ModuleDependency) String() string {
	return md.Key()
}

// ArtifactPath returns the path of the artifact relative to a repository root
func (md ModuleDependency) ArtifactPath() string {
	return strings.ReplaceAll(md.Group, ".", "/") + "/" + md.Name + "/" + md.Version + "/" + md.Name + "-" + md.Version + ".jar"
}

// ToDocument encodes the dependency
func (md ModuleDependency) ToDocument() document.Document {
	doc := document.New().
		Append("repo", md.Repository).
		Append("url", md.URL).
		Append("group", md.Group).
		Append("name", md.Name).
		Append("version", md.Version)
	if md.Checksum != "" {
		doc.Append("checksum", md.Checksum)
	}
	return doc
}

// ModuleDependencyFromDocument decodes a dependency
func ModuleDependencyFromDocument(doc document.Document) ModuleDependency {
	return ModuleDependency{
		Repository: doc.GetString("repo"),
		URL:        doc.GetString("url"),
		Group:      doc.GetString("group"),
		Name:       doc.GetString("name"),
		Version:    doc.GetString("version"),
		Checksum:   doc.GetString("checksum"),
	}
}

// ModuleDescriptor describes a module: its identity, the modules it requires and its artifacts
type ModuleDescriptor struct {
	Group            string
	Name             string
	Version          string
	Main             string
	Description      string
	DependsOnModules []string
	Dependencies     []ModuleDependency
	Repositories     []ModuleRepository
}

// Validate checks the required fields and the dependency coordinates
func (d *ModuleDescriptor) Validate() error {
	if d.Name == "" {
		return errors.New("module name is missing")
	}
	if d.Version == "" {
		return errors.Errorf("module %s: version is missing", d.Name)
	}
	if !isPathSegment(d.Name) || !isPathSegment(d.Version) || (d.Group != "" && !isGroup(d.Group)) {
		return errors.Errorf("module %s:%s:%s: group, name and version must not contain path elements", d.Group, d.Name, d.Version)
	}
	for _, dep := range d.Dependencies {
		if dep.Group == "" || dep.Name == "" || dep.Version == "" {
			return errors.Errorf("module %s: incomplete dependency %s", d.Name, dep.Key())
		}
		if !isGroup(dep.Group) || !isPathSegment(dep.Name) || !isPathSegment(dep.Version) {
			return errors.Errorf("module %s: dependency %s must not contain path elements", d.Name, dep.Key())
		}
		if dep.URL == "" && d.RepositoryURL(dep.Repository) == "" {
			return errors.Errorf("module %s: unknown repository %q of dependency %s", d.Name, dep.Repository, dep.Key())
		}
	}
	for _, m := range d.DependsOnModules {
		if m == d.Name {
			return errors.Errorf("module %s depends on itself", d.Name)
		}
	}
	return nil
}

// isPathSegment reports whether s can be used as a single element of an artifact path
func isPathSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}

// isGroup reports whether every dot separated part of the group is a path segment
func isGroup(group string) bool {
	for _, part := range strings.Split(group, ".") {
		if !isPathSegment(part) {
			return false
		}
	}
	return true
}

// RepositoryURL returns the url of the named repository, or ""
func (d *ModuleDescriptor) RepositoryURL(name string) string {
	for _, r := range d.Repositories {
		if r.Name == name {
			return r.URL
		}
	}
	return ""
}

// DownloadURL returns where the dependency is downloaded from
func (d *ModuleDescriptor) DownloadURL(dep ModuleDependency) string {
	if dep.URL != "" {
		return dep.URL
	}
	return strings.TrimSuffix(d.RepositoryURL(dep.Repository), "/") + "/" + dep.ArtifactPath()
}

func (d *ModuleDescriptor) String() string {
	return d.Group + ":" + d.Name + ":" + d.Version
}

// ToDocument encodes the descriptor
func (d *ModuleDescriptor) ToDocument() document.Document {
	repos := make([]document.Document, 0, len(d.Repositories))
	for _, r := range d.Repositories {
		repos = append(repos, document.Of("name", r.Name).Append("url", r.URL))
	}
	return document.New().
		Append("group", d.Group).
		Append("name", d.Name).
		Append("version", d.Version).
		Append("main", d.Main).
		Append("description", d.Description).
		Append("dependsOnModules", append([]string{}, d.DependsOnModules...)).
		Append("dependencies", document.Documents(d.Dependencies)).
		Append("repositories", repos)
}

// ModuleDescriptorFromDocument decodes a descriptor
func ModuleDescriptorFromDocument(doc document.Document) *ModuleDescriptor {
	d := &ModuleDescriptor{
		Group:            doc.GetString("group"),
		Name:             doc.GetString("name"),
		Version:          doc.GetString("version"),
		Main:             doc.GetString("main"),
		Description:      doc.GetString("description"),
		DependsOnModules: doc.GetStrings("dependsOnModules"),
	}
	for _, dd := range doc.GetDocuments("dependencies") {
		d.Dependencies = append(d.Dependencies, ModuleDependencyFromDocument(dd))
	}
	for _, rd := range doc.GetDocuments("repositories") {
		d.Repositories = append(d.Repositories, ModuleRepository{Name: rd.GetString("name"), URL: rd.GetString("url")})
	}
	return d
}
