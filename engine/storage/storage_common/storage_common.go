package storagecommon

import (
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// TemplateStorage defines the interface of template storage backends
type TemplateStorage interface {
	// Name is the storage name referenced by ServiceTemplate.Storage
	Name() string
	Has(template service.ServiceTemplate) (bool, error)
	// CopyTemplate copies the template files into targetDir, merging with existing files
	CopyTemplate(template service.ServiceTemplate, targetDir string) error
	// UploadDeployment replaces the template of the deployment with the files of sourceDir
	UploadDeployment(deployment service.ServiceDeployment, sourceDir string) error
	Delete(template service.ServiceTemplate) error
	Templates() ([]service.ServiceTemplate, error)
	Close()
}
