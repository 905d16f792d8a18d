// Package templatestoragefilesystem stores templates as directories: <directory>/<prefix>/<name>
package templatestoragefilesystem

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnioutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
	. "github.com/JavaProjektDEV/CloudNet-v3/engine/storage/storage_common"
)

// FileSystemTemplateStorage keeps templates in a local directory
type FileSystemTemplateStorage struct {
	name      string
	directory string
}

func (ts *FileSystemTemplateStorage) templateDir(template service.ServiceTemplate) string {
	return filepath.Join(ts.directory, template.Prefix, template.Name)
}

func (ts *FileSystemTemplateStorage) Name() string {
	return ts.name
}

func (ts *FileSystemTemplateStorage) Has(template service.ServiceTemplate) (bool, error) {
	info, err := os.Stat(ts.templateDir(template))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil && info.IsDir(), err
}

func (ts *FileSystemTemplateStorage) CopyTemplate(template service.ServiceTemplate, targetDir string) error {
	dir := ts.templateDir(template)
	if !cnioutil.IsExists(dir) {
		return errors.Wrapf(common.ErrNotFound, "template %s", template)
	}
	cnlog.Debugf("copying template %s to %s", template, targetDir)
	return cnioutil.CopyDir(dir, targetDir, nil)
}

func (ts *FileSystemTemplateStorage) UploadDeployment(deployment service.ServiceDeployment, sourceDir string) error {
	dir := ts.templateDir(deployment.Template)
	staging := dir + ".deploying"
	if err := os.RemoveAll(staging); err != nil {
		return err
	}
	if err := cnioutil.CopyDir(sourceDir, staging, cnioutil.ExcludeMatcher(deployment.ExcludedFiles)); err != nil {
		os.RemoveAll(staging)
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.Rename(staging, dir)
}

func (ts *FileSystemTemplateStorage) Delete(template service.ServiceTemplate) error {
	return os.RemoveAll(ts.templateDir(template))
}

func (ts *FileSystemTemplateStorage) Templates() ([]service.ServiceTemplate, error) {
	prefixes, err := os.ReadDir(ts.directory)
	if err != nil {
		return nil, err
	}
	var templates []service.ServiceTemplate
	for _, prefix := range prefixes {
		if !prefix.IsDir() {
			continue
		}
		names, err := os.ReadDir(filepath.Join(ts.directory, prefix.Name()))
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if name.IsDir() && filepath.Ext(name.Name()) != ".deploying" {
				templates = append(templates, service.NewServiceTemplate(prefix.Name(), name.Name(), ts.name))
			}
		}
	}
	return templates, nil
}

func (ts *FileSystemTemplateStorage) Close() {
	// need to do nothing
}

// OpenDirectory opens directory as template storage of the name
func OpenDirectory(name string, directory string) (TemplateStorage, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, err
	}
	return &FileSystemTemplateStorage{
		name:      name,
		directory: directory,
	}, nil
}
