package module

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/module/types"
)

const testRepo = "https://repo.example.org/releases"

type fakeDownloader struct {
	lock      sync.Mutex
	content   map[string][]byte
	downloads map[string]int
	gate      chan struct{}
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{content: map[string][]byte{}, downloads: map[string]int{}}
}

func (d *fakeDownloader) serve(dep types.ModuleDependency, content string) {
	d.content[testRepo+"/"+dep.ArtifactPath()] = []byte(content)
}

func (d *fakeDownloader) Download(ctx context.Context, url string, w io.Writer) error {
	d.lock.Lock()
	d.downloads[url]++
	data, ok := d.content[url]
	gate := d.gate
	d.lock.Unlock()
	if gate != nil {
		<-gate
	}
	if !ok {
		return errors.Errorf("404 %s", url)
	}
	_, err := w.Write(data)
	return err
}

func (d *fakeDownloader) total() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	n := 0
	for _, c := range d.downloads {
		n += c
	}
	return n
}

var (
	recordLock sync.Mutex
	records    []string
)

func record(s string) {
	recordLock.Lock()
	records = append(records, s)
	recordLock.Unlock()
}

func takeRecords() []string {
	recordLock.Lock()
	defer recordLock.Unlock()
	res := records
	records = nil
	return res
}

type recordingModule struct{ name string }

func (m *recordingModule) Start(ctx *ModuleContext) error {
	record("start:" + ctx.Name())
	return nil
}

func (m *recordingModule) Stop() error {
	record("stop:" + m.name)
	return nil
}

func init() {
	for _, name := range []string{"base", "web", "stats"} {
		name := name
		RegisterFactory("test."+name, func() Module { return &recordingModule{name: name} })
	}
}

var guava = types.ModuleDependency{Repository: "central", Group: "com.google.guava", Name: "guava", Version: "31.1"}

func descriptor(name string, dependsOn []string, deps ...types.ModuleDependency) *types.ModuleDescriptor {
	return &types.ModuleDescriptor{
		Group:            "eu.cloudnetservice",
		Name:             name,
		Version:          "1.0",
		DependsOnModules: dependsOn,
		Dependencies:     deps,
		Repositories:     []types.ModuleRepository{{Name: "central", URL: testRepo}},
	}
}

func newTestProvider(t *testing.T) (*Provider, *fakeDownloader, *event.Bus) {
	downloader := newFakeDownloader()
	bus := event.NewBus()
	return NewProvider(t.TempDir(), downloader, bus), downloader, bus
}

func TestDiamondDownloadsOnce(t *testing.T) {
	p, downloader, _ := newTestProvider(t)
	downloader.serve(guava, "guava jar")

	err := p.LoadModules(context.Background(), []*types.ModuleDescriptor{
		descriptor("a", []string{"c"}, guava),
		descriptor("b", []string{"c"}, guava),
		descriptor("c", nil, guava),
	})
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, downloader.total())

	infos := p.Modules()
	assert.Equal(t, 3, len(infos))
	for _, info := range infos {
		assert.Equal(t, types.LOADED, info.LifeCycle)
		path, ok := info.Scope.Lookup("com.google.guava", "guava")
		assert.T(t, ok)
		data, err := os.ReadFile(path)
		assert.Equal(t, nil, err)
		assert.Equal(t, "guava jar", string(data))
	}
}

func TestConcurrentLoadsShareDownload(t *testing.T) {
	p, downloader, _ := newTestProvider(t)
	downloader.serve(guava, "guava jar")
	downloader.gate = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, name := range []string{"x", "y"} {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.LoadModule(context.Background(), descriptor(name, nil, guava))
		}()
	}
	close(downloader.gate)
	wg.Wait()

	assert.Equal(t, nil, errs[0])
	assert.Equal(t, nil, errs[1])
	assert.Equal(t, 1, downloader.total())
}

func TestCycleRejectedBeforeDownload(t *testing.T) {
	p, downloader, _ := newTestProvider(t)
	downloader.serve(guava, "guava jar")

	err := p.LoadModules(context.Background(), []*types.ModuleDescriptor{
		descriptor("a", []string{"b"}, guava),
		descriptor("b", []string{"a"}, guava),
	})
	assert.Equal(t, common.ErrDependencyCycle, errors.Cause(err))
	assert.Equal(t, 0, downloader.total())
	assert.Equal(t, 0, len(p.Modules()))
}

func TestMissingPrerequisite(t *testing.T) {
	p, _, _ := newTestProvider(t)
	err := p.LoadModule(context.Background(), descriptor("a", []string{"missing"}))
	assert.Equal(t, common.ErrPrerequisiteNotReady, errors.Cause(err))
	_, ok := p.Module("a")
	assert.Equal(t, false, ok)
}

func TestChecksum(t *testing.T) {
	p, downloader, _ := newTestProvider(t)
	sum := sha256.Sum256([]byte("guava jar"))
	b3 := blake3.Sum256([]byte("guava jar"))

	good := guava
	good.Checksum = "sha256:" + hex.EncodeToString(sum[:])
	downloader.serve(good, "guava jar")
	assert.Equal(t, nil, p.LoadModule(context.Background(), descriptor("good", nil, good)))

	blake := guava
	blake.Version = "32.0"
	blake.Checksum = "blake3:" + hex.EncodeToString(b3[:])
	downloader.serve(blake, "guava jar")
	assert.Equal(t, nil, p.LoadModule(context.Background(), descriptor("blake", nil, blake)))

	bad := guava
	bad.Version = "33.0"
	bad.Checksum = hex.EncodeToString(sum[:])
	downloader.serve(bad, "tampered jar")
	err := p.LoadModule(context.Background(), descriptor("bad", nil, bad))
	assert.Equal(t, common.ErrDependencyResolutionFailed, errors.Cause(err))
	_, ok := p.Module("bad")
	assert.Equal(t, false, ok)
	assert.Equal(t, false, p.Cache().Has(bad))
}

func TestPreInstallCancelled(t *testing.T) {
	p, downloader, bus := newTestProvider(t)
	downloader.serve(guava, "guava jar")
	var seen []string
	bus.Register(event.MODULE_PRE_INSTALL_DEPENDENCY, func(ev *event.Event) {
		seen = append(seen, ev.Module.Name+"/"+ev.Dependency.Key())
		ev.Cancelled = true
	})

	err := p.LoadModule(context.Background(), descriptor("a", nil, guava))
	assert.Equal(t, common.ErrDependencyResolutionFailed, errors.Cause(err))
	assert.Equal(t, []string{"a/com.google.guava:guava:31.1"}, seen)
	assert.Equal(t, 0, downloader.total())
	assert.Equal(t, 0, len(p.Modules()))
}

func TestSameArtifactDifferentVersions(t *testing.T) {
	p, downloader, _ := newTestProvider(t)
	newer := guava
	newer.Version = "32.0"
	downloader.serve(guava, "old")
	downloader.serve(newer, "new")

	assert.Equal(t, nil, p.LoadModule(context.Background(), descriptor("old", nil, guava)))
	assert.Equal(t, nil, p.LoadModule(context.Background(), descriptor("new", nil, newer)))

	oldInfo, _ := p.Module("old")
	newInfo, _ := p.Module("new")
	assert.Equal(t, "31.1", oldInfo.Scope.Version("com.google.guava", "guava"))
	assert.Equal(t, "32.0", newInfo.Scope.Version("com.google.guava", "guava"))
	oldPath, _ := oldInfo.Scope.Lookup("com.google.guava", "guava")
	newPath, _ := newInfo.Scope.Lookup("com.google.guava", "guava")
	assert.NotEqual(t, oldPath, newPath)
}

func TestStartStopOrder(t *testing.T) {
	p, _, bus := newTestProvider(t)
	var lifeCycles []string
	bus.Register(event.MODULE_LIFECYCLE, func(ev *event.Event) {
		lifeCycles = append(lifeCycles, ev.Module.Name+":"+string(ev.ModuleLifeCycle))
	})
	takeRecords()

	base := descriptor("base", nil)
	base.Main = "test.base"
	web := descriptor("web", []string{"base"})
	web.Main = "test.web"
	stats := descriptor("stats", []string{"web"})
	stats.Main = "test.stats"
	assert.Equal(t, nil, p.LoadModules(context.Background(), []*types.ModuleDescriptor{stats, web, base}))

	err := p.StartModule("web")
	assert.Equal(t, common.ErrPrerequisiteNotReady, errors.Cause(err))

	assert.Equal(t, nil, p.StartAll())
	assert.Equal(t, []string{"start:base", "start:web", "start:stats"}, takeRecords())

	assert.Equal(t, nil, p.StopModule("base"))
	assert.Equal(t, []string{"stop:stats", "stop:web", "stop:base"}, takeRecords())
	info, _ := p.Module("web")
	assert.Equal(t, types.STOPPED, info.LifeCycle)

	assert.Equal(t, nil, p.StartAll())
	takeRecords()
	assert.Equal(t, nil, p.UnloadModule("web"))
	assert.Equal(t, []string{"stop:stats", "stop:web"}, takeRecords())
	assert.Equal(t, 1, len(p.Modules()))

	assert.Equal(t, []string{
		"base:LOADED", "web:LOADED", "stats:LOADED",
		"base:STARTED", "web:STARTED", "stats:STARTED",
		"stats:STOPPED", "web:STOPPED", "base:STOPPED",
		"base:STARTED", "web:STARTED", "stats:STARTED",
		"stats:STOPPED", "web:STOPPED", "stats:UNLOADED", "web:UNLOADED",
	}, lifeCycles)
}

func TestUnknownMain(t *testing.T) {
	p, _, _ := newTestProvider(t)
	d := descriptor("a", nil)
	d.Main = "not.registered"
	assert.NotEqual(t, nil, p.LoadModule(context.Background(), d))
	assert.Equal(t, 0, len(p.Modules()))
}
