package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"
)

const yamlDescriptor = `
group: eu.cloudnetservice.cloudnet
name: cloudnet-bridge
version: 3.4.0
main: bridge
dependsOnModules:
  - cloudnet-database
repositories:
  - name: central
    url: https://repo1.maven.org/maven2
dependencies:
  - repo: central
    group: com.google.code.gson
    name: gson
    version: 2.8.9
    checksum: sha256:d3999291855de495c94c743761b8ab5176cfeabe281a5ab0d8e8d45326fd703e
`

const jsoncDescriptor = `{
  // bridge between the node and the proxies
  "group": "eu.cloudnetservice.cloudnet",
  "name": "cloudnet-bridge",
  "version": "3.4.0",
  "dependencies": [
    {"url": "https://example.org/gson.jar", "group": "com.google.code.gson", "name": "gson", "version": "2.8.9"},
  ],
}`

func TestParseYAMLDescriptor(t *testing.T) {
	d, err := ParseDescriptor("module.yml", []byte(yamlDescriptor))
	assert.Equal(t, nil, err)
	assert.Equal(t, "cloudnet-bridge", d.Name)
	assert.Equal(t, "bridge", d.Main)
	assert.Equal(t, []string{"cloudnet-database"}, d.DependsOnModules)
	assert.Equal(t, 1, len(d.Dependencies))
	assert.Equal(t, "https://repo1.maven.org/maven2/com/google/code/gson/gson/2.8.9/gson-2.8.9.jar", d.DownloadURL(d.Dependencies[0]))
}

func TestParseJSONCDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module.json")
	assert.Equal(t, nil, os.WriteFile(path, []byte(jsoncDescriptor), 0644))

	d, err := LoadDescriptorFile(path)
	assert.Equal(t, nil, err)
	assert.Equal(t, "3.4.0", d.Version)
	assert.Equal(t, "https://example.org/gson.jar", d.DownloadURL(d.Dependencies[0]))
}

func TestParseInvalidDescriptor(t *testing.T) {
	_, err := ParseDescriptor("module.yml", []byte("name: nameless\n"))
	assert.NotEqual(t, nil, err)
	_, err = ParseDescriptor("module.toml", []byte(""))
	assert.NotEqual(t, nil, err)
}

func TestFindDescriptors(t *testing.T) {
	dir := t.TempDir()
	write := func(rel string, content string) {
		path := filepath.Join(dir, rel)
		assert.Equal(t, nil, os.MkdirAll(filepath.Dir(path), 0755))
		assert.Equal(t, nil, os.WriteFile(path, []byte(content), 0644))
	}
	write("bridge/module.yml", yamlDescriptor)
	write("database/module.json", `{"group": "eu.cloudnetservice.cloudnet", "name": "cloudnet-database", "version": "3.4.0"}`)
	write(".libs/ignored/module.yml", "name: broken\n")
	write("README.txt", "not a module")

	descriptors, err := FindDescriptors(dir)
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(descriptors))
	assert.Equal(t, "cloudnet-bridge", descriptors[0].Name)
	assert.Equal(t, "cloudnet-database", descriptors[1].Name)

	descriptors, err = FindDescriptors(filepath.Join(dir, "missing"))
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(descriptors))
}
