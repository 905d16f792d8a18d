package templatestoragefilesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

func TestFileSystemTemplateStorage(t *testing.T) {
	ts, err := OpenDirectory("local", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	lobby := service.NewServiceTemplate("Lobby", "default", "local")

	has, err := ts.Has(lobby)
	assert.Equal(t, nil, err)
	assert.Equal(t, false, has)
	err = ts.CopyTemplate(lobby, t.TempDir())
	assert.Equal(t, common.ErrNotFound, errors.Cause(err))

	source := t.TempDir()
	os.MkdirAll(filepath.Join(source, "plugins"), 0755)
	os.MkdirAll(filepath.Join(source, "logs"), 0755)
	os.WriteFile(filepath.Join(source, "server.properties"), []byte("motd=Lobby"), 0644)
	os.WriteFile(filepath.Join(source, "plugins", "bridge.jar"), []byte("jar"), 0644)
	os.WriteFile(filepath.Join(source, "logs", "latest.log"), []byte("log"), 0644)

	deployment := service.ServiceDeployment{Template: lobby, ExcludedFiles: []string{"logs/"}}
	assert.Equal(t, nil, ts.UploadDeployment(deployment, source))

	target := t.TempDir()
	assert.Equal(t, nil, ts.CopyTemplate(lobby, target))
	data, err := os.ReadFile(filepath.Join(target, "plugins", "bridge.jar"))
	assert.Equal(t, nil, err)
	assert.Equal(t, "jar", string(data))
	_, err = os.Stat(filepath.Join(target, "logs"))
	assert.T(t, os.IsNotExist(err))

	templates, err := ts.Templates()
	assert.Equal(t, nil, err)
	assert.Equal(t, []service.ServiceTemplate{lobby}, templates)

	assert.Equal(t, nil, ts.Delete(lobby))
	has, _ = ts.Has(lobby)
	assert.Equal(t, false, has)
}
