package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

func TestRegistry(t *testing.T) {
	r, err := Open(Options{Directory: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	assert.Equal(t, []string{LOCAL}, r.Names())

	proxy := service.NewServiceTemplate("Proxy", "default", LOCAL)
	source := t.TempDir()
	os.WriteFile(filepath.Join(source, "config.yml"), []byte("online_mode: true"), 0644)

	_, err = r.UploadDeploymentAsync(service.ServiceDeployment{Template: proxy}, source).GetErr(5 * time.Second)
	assert.Equal(t, nil, err)

	target := t.TempDir()
	assert.Equal(t, nil, r.CopyTemplate(proxy, target))
	data, _ := os.ReadFile(filepath.Join(target, "config.yml"))
	assert.Equal(t, "online_mode: true", string(data))

	templates, err := r.Templates()
	assert.Equal(t, nil, err)
	assert.Equal(t, []service.ServiceTemplate{proxy}, templates)

	err = r.CopyTemplate(service.NewServiceTemplate("Proxy", "default", "ftp"), target)
	assert.Equal(t, common.ErrNotFound, errors.Cause(err))
}
