package module

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/module/types"
)

type descriptorFile struct {
	Group            string   `yaml:"group" json:"group"`
	Name             string   `yaml:"name" json:"name"`
	Version          string   `yaml:"version" json:"version"`
	Main             string   `yaml:"main" json:"main"`
	Description      string   `yaml:"description" json:"description"`
	DependsOnModules []string `yaml:"dependsOnModules" json:"dependsOnModules"`
	Dependencies     []struct {
		Repo     string `yaml:"repo" json:"repo"`
		URL      string `yaml:"url" json:"url"`
		Group    string `yaml:"group" json:"group"`
		Name     string `yaml:"name" json:"name"`
		Version  string `yaml:"version" json:"version"`
		Checksum string `yaml:"checksum" json:"checksum"`
	} `yaml:"dependencies" json:"dependencies"`
	Repositories []struct {
		Name string `yaml:"name" json:"name"`
		URL  string `yaml:"url" json:"url"`
	} `yaml:"repositories" json:"repositories"`
}

// ParseDescriptor parses a module descriptor in the format of the file extension:
// .yml and .yaml are YAML, .json is JSON which may contain comments and trailing commas
func ParseDescriptor(filename string, data []byte) (*types.ModuleDescriptor, error) {
	var f descriptorFile
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, errors.Wrapf(err, "parse %s", filename)
		}
	case ".json":
		if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
			return nil, errors.Wrapf(err, "parse %s", filename)
		}
	default:
		return nil, errors.Errorf("unknown module descriptor format: %s", filename)
	}

	d := &types.ModuleDescriptor{
		Group:            f.Group,
		Name:             f.Name,
		Version:          f.Version,
		Main:             f.Main,
		Description:      f.Description,
		DependsOnModules: f.DependsOnModules,
	}
	for _, dep := range f.Dependencies {
		d.Dependencies = append(d.Dependencies, types.ModuleDependency{
			Repository: dep.Repo,
			URL:        dep.URL,
			Group:      dep.Group,
			Name:       dep.Name,
			Version:    dep.Version,
			Checksum:   dep.Checksum,
		})
	}
	for _, r := range f.Repositories {
		d.Repositories = append(d.Repositories, types.ModuleRepository{Name: r.Name, URL: r.URL})
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadDescriptorFile reads and parses a module descriptor file
func LoadDescriptorFile(path string) (*types.ModuleDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDescriptor(path, data)
}

var descriptorFileNames = []string{"module.yml", "module.yaml", "module.json"}

// FindDescriptors parses the descriptors of the module directories below dir, sorted by module name.
// A module directory holds one module.yml, module.yaml or module.json. Directories starting with a dot are skipped.
func FindDescriptors(dir string) ([]*types.ModuleDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var descriptors []*types.ModuleDescriptor
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		for _, name := range descriptorFileNames {
			path := filepath.Join(dir, entry.Name(), name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			d, err := LoadDescriptorFile(path)
			if err != nil {
				return nil, err
			}
			descriptors = append(descriptors, d)
			break
		}
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors, nil
}
