// Package templatestoragemongodb stores templates as zstd compressed tar archives in MongoDB GridFS
package templatestoragemongodb

import (
	"bufio"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnioutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/storage/archive"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/storage/storage_common"
)

const (
	_DEFAULT_DB_NAME = "cloudnet"
	_GRIDFS_PREFIX   = "templates"
	_ARCHIVE_EXT     = ".tar.zst"
)

type mongoDBTemplateStorage struct {
	name string
	db   *mgo.Database
	gfs  *mgo.GridFS
}

// OpenMongoDB opens mongodb GridFS as template storage of the name
func OpenMongoDB(name string, url string, dbname string) (storagecommon.TemplateStorage, error) {
	cnlog.Debugf("Connecting MongoDB %s ...", url)
	session, err := mgo.Dial(url)
	if err != nil {
		return nil, err
	}

	session.SetMode(mgo.Monotonic, true)
	if dbname == "" {
		dbname = _DEFAULT_DB_NAME
	}
	db := session.DB(dbname)
	return &mongoDBTemplateStorage{
		name: name,
		db:   db,
		gfs:  db.GridFS(_GRIDFS_PREFIX),
	}, nil
}

func archiveName(template service.ServiceTemplate) string {
	return template.TemplatePath() + _ARCHIVE_EXT
}

func (ts *mongoDBTemplateStorage) Name() string {
	return ts.name
}

func (ts *mongoDBTemplateStorage) Has(template service.ServiceTemplate) (bool, error) {
	n, err := ts.gfs.Find(bson.M{"filename": archiveName(template)}).Count()
	return n > 0, err
}

func (ts *mongoDBTemplateStorage) CopyTemplate(template service.ServiceTemplate, targetDir string) error {
	f, err := ts.gfs.Open(archiveName(template))
	if err == mgo.ErrNotFound {
		return errors.Wrapf(common.ErrNotFound, "template %s", template)
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return archive.ExtractArchive(bufio.NewReader(f), targetDir)
}

func (ts *mongoDBTemplateStorage) UploadDeployment(deployment service.ServiceDeployment, sourceDir string) error {
	name := archiveName(deployment.Template)
	if err := ts.gfs.Remove(name); err != nil {
		return err
	}
	f, err := ts.gfs.Create(name)
	if err != nil {
		return err
	}
	err = archive.WriteArchive(f, sourceDir, cnioutil.ExcludeMatcher(deployment.ExcludedFiles))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (ts *mongoDBTemplateStorage) Delete(template service.ServiceTemplate) error {
	return ts.gfs.Remove(archiveName(template))
}

func (ts *mongoDBTemplateStorage) Templates() ([]service.ServiceTemplate, error) {
	var names []string
	if err := ts.gfs.Find(nil).Distinct("filename", &names); err != nil {
		return nil, err
	}
	sort.Strings(names)
	templates := make([]service.ServiceTemplate, 0, len(names))
	for _, name := range names {
		path := strings.TrimSuffix(name, _ARCHIVE_EXT)
		if i := strings.IndexByte(path, '/'); i > 0 {
			templates = append(templates, service.NewServiceTemplate(path[:i], path[i+1:], ts.name))
		}
	}
	return templates, nil
}

func (ts *mongoDBTemplateStorage) Close() {
	ts.db.Session.Close()
}
