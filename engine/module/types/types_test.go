package types

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestDescriptorValidateAndURLs(t *testing.T) {
	d := &ModuleDescriptor{
		Group:        "eu.cloudnetservice",
		Name:         "cloudnet-bridge",
		Version:      "3.0.0",
		Repositories: []ModuleRepository{{Name: "maven", URL: "https://repo1.maven.org/maven2/"}},
		Dependencies: []ModuleDependency{
			{Repository: "maven", Group: "com.google.code.gson", Name: "gson", Version: "2.8.5"},
			{URL: "https://example.org/a.jar", Group: "org.example", Name: "a", Version: "1"},
		},
	}
	assert.Equal(t, nil, d.Validate())
	assert.Equal(t, "com.google.code.gson:gson:2.8.5", d.Dependencies[0].Key())
	assert.Equal(t, "https://repo1.maven.org/maven2/com/google/code/gson/gson/2.8.5/gson-2.8.5.jar", d.DownloadURL(d.Dependencies[0]))
	assert.Equal(t, "https://example.org/a.jar", d.DownloadURL(d.Dependencies[1]))

	d.Dependencies = append(d.Dependencies, ModuleDependency{Repository: "missing", Group: "g", Name: "n", Version: "1"})
	assert.NotEqual(t, nil, d.Validate())

	selfDep := &ModuleDescriptor{Name: "a", Version: "1", DependsOnModules: []string{"a"}}
	assert.NotEqual(t, nil, selfDep.Validate())
}

func TestDescriptorDocument(t *testing.T) {
	d := &ModuleDescriptor{
		Name:             "signs",
		Version:          "1.0",
		DependsOnModules: []string{"bridge"},
		Dependencies:     []ModuleDependency{{URL: "https://example.org/a.jar", Group: "g", Name: "a", Version: "1", Checksum: "sha256:00"}},
	}
	back := ModuleDescriptorFromDocument(d.ToDocument())
	assert.Equal(t, d.Name, back.Name)
	assert.Equal(t, d.DependsOnModules, back.DependsOnModules)
	assert.Equal(t, d.Dependencies, back.Dependencies)
}

func TestDescriptorRejectsPathElements(t *testing.T) {
	repos := []ModuleRepository{{Name: "maven", URL: "https://repo1.maven.org/maven2/"}}
	valid := ModuleDependency{Repository: "maven", Group: "com.google.code.gson", Name: "gson", Version: "2.8.5"}
	withDep := func(dep ModuleDependency) *ModuleDescriptor {
		return &ModuleDescriptor{Name: "signs", Version: "1.0", Repositories: repos, Dependencies: []ModuleDependency{dep}}
	}
	assert.Equal(t, nil, withDep(valid).Validate())

	bad := []ModuleDependency{
		{Repository: "maven", Group: "com.google", Name: "gson", Version: "../../.."},
		{Repository: "maven", Group: "com.google", Name: "../gson", Version: "1"},
		{Repository: "maven", Group: "com.google", Name: "gson", Version: "1/2"},
		{Repository: "maven", Group: "com.google", Name: "gson", Version: `1\2`},
		{Repository: "maven", Group: "com..google", Name: "gson", Version: "1"},
		{Repository: "maven", Group: "com/google", Name: "gson", Version: "1"},
		{Repository: "maven", Group: "com.google", Name: "..", Version: "1"},
	}
	for _, dep := range bad {
		assert.NotEqual(t, nil, withDep(dep).Validate())
	}

	assert.NotEqual(t, nil, (&ModuleDescriptor{Name: "signs", Version: "../.."}).Validate())
	assert.NotEqual(t, nil, (&ModuleDescriptor{Name: "a/b", Version: "1"}).Validate())
	assert.NotEqual(t, nil, (&ModuleDescriptor{Group: "eu..cloudnet", Name: "a", Version: "1"}).Validate())
	assert.Equal(t, nil, (&ModuleDescriptor{Group: "eu.cloudnetservice", Name: "a", Version: "1.0-SNAPSHOT"}).Validate())
}
