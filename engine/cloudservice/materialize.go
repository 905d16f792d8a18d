package cloudservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnioutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/opmon"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// materialize fills the working directory: inclusions first, then the templates in configuration order,
// later templates overwriting files of earlier ones. cs.lock must be held.
func (m *Manager) materialize(ctx context.Context, cs *cloudService) error {
	cfg := cs.snapshot.Configuration
	if err := os.MkdirAll(cs.workDir, 0755); err != nil {
		return errors.Wrapf(common.ErrMaterializationFailed, "%s: %v", cs.snapshot.Name(), err)
	}

	for _, inclusion := range cfg.Includes {
		if err := m.include(ctx, inclusion, cs.workDir); err != nil {
			return errors.Wrapf(common.ErrMaterializationFailed, "%s: inclusion %s: %v", cs.snapshot.Name(), inclusion, err)
		}
	}
	for _, template := range cfg.Templates {
		if err := m.opts.Storage.CopyTemplate(template, cs.workDir); err != nil {
			return errors.Wrapf(common.ErrMaterializationFailed, "%s: template %s: %v", cs.snapshot.Name(), template, err)
		}
	}
	return nil
}

func (m *Manager) include(ctx context.Context, inclusion service.ServiceRemoteInclusion, workDir string) error {
	dest := filepath.Join(workDir, filepath.Clean("/"+inclusion.Destination))
	if inclusion.Checksum != "" && checksumMatches(dest, inclusion.Checksum) {
		cnlog.Debugf("inclusion %s is up to date", inclusion)
		return nil
	}

	cached := m.inclusionCacheFile(inclusion)
	if !cnioutil.IsExists(cached) || (inclusion.Checksum != "" && !checksumMatches(cached, inclusion.Checksum)) {
		if err := m.downloadInclusion(ctx, inclusion, cached); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return cnioutil.CopyFile(cached, dest)
}

func (m *Manager) inclusionCacheFile(inclusion service.ServiceRemoteInclusion) string {
	sum := sha256.Sum256([]byte(inclusion.URL))
	return filepath.Join(m.opts.CacheDir, hex.EncodeToString(sum[:]))
}

func checksumMatches(path string, checksum string) bool {
	sum, err := cnioutil.FileSHA256(path)
	return err == nil && strings.EqualFold(sum, checksum)
}

// downloadInclusion downloads into a temporary file next to target and renames it when the checksum matches
func (m *Manager) downloadInclusion(ctx context.Context, inclusion service.ServiceRemoteInclusion, target string) error {
	op := opmon.StartOperation("service.include")
	defer op.Finish(consts.INCLUSION_DOWNLOAD_TIMEOUT / 2)

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	ctx, cancel := context.WithTimeout(ctx, consts.INCLUSION_DOWNLOAD_TIMEOUT)
	defer cancel()
	h := sha256.New()
	err = m.opts.Downloader.Download(ctx, inclusion.URL, io.MultiWriter(tmp, h))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "download %s", inclusion.URL)
	}
	if inclusion.Checksum != "" {
		if sum := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(sum, inclusion.Checksum) {
			return errors.Errorf("checksum mismatch of %s: %s", inclusion.URL, sum)
		}
	}
	return os.Rename(tmp.Name(), target)
}
