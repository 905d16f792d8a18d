package module

import (
	"context"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/async"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnioutil"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/module/types"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/opmon"
)

// ArtifactCache stores downloaded artifacts by group:name:version, shared by all modules.
// Concurrent fetches of one artifact share a single download.
type ArtifactCache struct {
	dir        string
	downloader Downloader

	lock     sync.Mutex
	inflight map[string]*async.Task[string]
}

// NewArtifactCache creates a cache in dir
func NewArtifactCache(dir string, downloader Downloader) *ArtifactCache {
	return &ArtifactCache{
		dir:        dir,
		downloader: downloader,
		inflight:   map[string]*async.Task[string]{},
	}
}

// Path returns where the artifact is stored
func (c *ArtifactCache) Path(dep types.ModuleDependency) string {
	return filepath.Join(c.dir, filepath.FromSlash(dep.ArtifactPath()))
}

// Has checks if the artifact is cached
func (c *ArtifactCache) Has(dep types.ModuleDependency) bool {
	return cnioutil.IsExists(c.Path(dep))
}

// Fetch downloads the artifact from url unless it is cached, verifying the dependency checksum.
// It returns the path of the cached artifact.
func (c *ArtifactCache) Fetch(ctx context.Context, dep types.ModuleDependency, url string) (string, error) {
	path := c.Path(dep)
	if cnioutil.IsExists(path) {
		return path, nil
	}

	c.lock.Lock()
	if cnioutil.IsExists(path) {
		c.lock.Unlock()
		return path, nil
	}
	task := c.inflight[dep.Key()]
	owner := task == nil
	if owner {
		task = async.NewTask[string]()
		c.inflight[dep.Key()] = task
	}
	c.lock.Unlock()

	if owner {
		err := c.download(ctx, dep, url, path)
		c.lock.Lock()
		delete(c.inflight, dep.Key())
		c.lock.Unlock()
		if err != nil {
			task.Fail(err)
		} else {
			task.Complete(path)
		}
	}
	return task.Await(ctx)
}

func (c *ArtifactCache) download(ctx context.Context, dep types.ModuleDependency, url string, path string) error {
	sum, err := parseChecksum(dep.Checksum)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	ctx, cancel := context.WithTimeout(ctx, consts.MODULE_DOWNLOAD_TIMEOUT)
	defer cancel()

	op := opmon.StartOperation("module.download")
	cnlog.Infof("downloading %s from %s", dep, url)
	var w io.Writer = tmp
	var hasher hash.Hash
	if sum != nil {
		hasher = sum.newHash()
		w = io.MultiWriter(tmp, hasher)
	}
	err = c.downloader.Download(ctx, url, w)
	if err == nil && sum != nil {
		err = sum.verify(hasher)
	}
	op.Finish(consts.MODULE_DOWNLOAD_TIMEOUT / 10)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "download %s", dep)
	}
	return os.Rename(tmp.Name(), path)
}
