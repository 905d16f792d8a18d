package templatestoragemongodb

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/bmizerany/assert"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

func TestMongoDBTemplateStorage(t *testing.T) {
	url := os.Getenv("CLOUDNET_TEST_MONGODB")
	if url == "" {
		t.Skip("CLOUDNET_TEST_MONGODB is not set")
	}
	ts, err := OpenMongoDB("mongo", url, "cloudnet_test")
	if err != nil {
		t.Fatal(err)
	}
	defer ts.Close()

	template := service.NewServiceTemplate("Test", fmt.Sprintf("t%d", rand.Int()), "mongo")
	source := t.TempDir()
	os.WriteFile(filepath.Join(source, "server.properties"), []byte("motd=Test"), 0644)
	assert.Equal(t, nil, ts.UploadDeployment(service.ServiceDeployment{Template: template}, source))

	has, err := ts.Has(template)
	assert.Equal(t, nil, err)
	assert.T(t, has)

	target := t.TempDir()
	assert.Equal(t, nil, ts.CopyTemplate(template, target))
	data, _ := os.ReadFile(filepath.Join(target, "server.properties"))
	assert.Equal(t, "motd=Test", string(data))

	assert.Equal(t, nil, ts.Delete(template))
	has, _ = ts.Has(template)
	assert.Equal(t, false, has)
}
