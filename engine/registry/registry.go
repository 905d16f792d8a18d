// Package registry keeps the group configurations and service tasks of the cluster.
//
// Entries are cached in memory and written through to the KVDB under group/<name> and task/<name>,
// encoded as JSON documents.
package registry

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

const (
	groupPrefix = "group/"
	taskPrefix  = "task/"
)

var packer = document.JSONMsgPacker{}

// Registry holds groups and tasks by name
type Registry struct {
	db *kvdb.KVDB

	lock   sync.RWMutex
	groups map[string]*service.GroupConfiguration
	tasks  map[string]*service.ServiceTask
}

// Open loads all groups and tasks from the KVDB
func Open(db *kvdb.KVDB) (*Registry, error) {
	r := &Registry{
		db:     db,
		groups: map[string]*service.GroupConfiguration{},
		tasks:  map[string]*service.ServiceTask{},
	}

	groups, err := db.GetPrefix(groupPrefix).GetErr(consts.QUERY_BULK_TIMEOUT)
	if err != nil {
		return nil, errors.Wrap(err, "load groups")
	}
	for _, item := range groups {
		doc, err := document.Decode(packer, []byte(item.Val))
		if err != nil {
			cnlog.Errorf("registry: invalid group %s: %v", item.Key, err)
			continue
		}
		g := service.GroupConfigurationFromDocument(doc)
		r.groups[g.Name] = g
	}

	tasks, err := db.GetPrefix(taskPrefix).GetErr(consts.QUERY_BULK_TIMEOUT)
	if err != nil {
		return nil, errors.Wrap(err, "load tasks")
	}
	for _, item := range tasks {
		doc, err := document.Decode(packer, []byte(item.Val))
		if err != nil {
			cnlog.Errorf("registry: invalid task %s: %v", item.Key, err)
			continue
		}
		t := service.ServiceTaskFromDocument(doc)
		r.tasks[t.Name] = t
	}

	cnlog.Infof("registry: %d groups, %d tasks loaded", len(r.groups), len(r.tasks))
	return r, nil
}

func (r *Registry) write(key string, doc document.Document) error {
	data, err := document.Encode(packer, doc, nil)
	if err != nil {
		return err
	}
	_, err = r.db.Put(key, string(data)).GetErr(consts.QUERY_DEFAULT_TIMEOUT)
	return errors.Wrapf(err, "write %s", key)
}

func (r *Registry) delete(key string) error {
	_, err := r.db.Delete(key).GetErr(consts.QUERY_DEFAULT_TIMEOUT)
	return errors.Wrapf(err, "delete %s", key)
}

// AddGroup registers a new group. Group names are unique.
func (r *Registry) AddGroup(g *service.GroupConfiguration) error {
	if g.Name == "" {
		return errors.New("group name is empty")
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.groups[g.Name]; ok {
		return errors.Wrapf(common.ErrAlreadyExists, "group %s", g.Name)
	}
	if err := r.write(groupPrefix+g.Name, g.ToDocument()); err != nil {
		return err
	}
	r.groups[g.Name] = cloneGroup(g)
	return nil
}

// UpdateGroup creates or replaces a group
func (r *Registry) UpdateGroup(g *service.GroupConfiguration) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.write(groupPrefix+g.Name, g.ToDocument()); err != nil {
		return err
	}
	r.groups[g.Name] = cloneGroup(g)
	return nil
}

// RemoveGroup removes a group
func (r *Registry) RemoveGroup(name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.groups[name]; !ok {
		return errors.Wrapf(common.ErrNotFound, "group %s", name)
	}
	if err := r.delete(groupPrefix + name); err != nil {
		return err
	}
	delete(r.groups, name)
	return nil
}

// Group returns a copy of the group
func (r *Registry) Group(name string) (*service.GroupConfiguration, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	g, ok := r.groups[name]
	if !ok {
		return nil, false
	}
	return cloneGroup(g), true
}

// HasGroup checks if the group exists
func (r *Registry) HasGroup(name string) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	_, ok := r.groups[name]
	return ok
}

// Groups returns copies of all groups sorted by name
func (r *Registry) Groups() []*service.GroupConfiguration {
	r.lock.RLock()
	res := make([]*service.GroupConfiguration, 0, len(r.groups))
	for _, g := range r.groups {
		res = append(res, cloneGroup(g))
	}
	r.lock.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

// AddTask registers a new task. Tasks may only refer to existing groups.
func (r *Registry) AddTask(t *service.ServiceTask) error {
	if t.Name == "" {
		return errors.New("task name is empty")
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.tasks[t.Name]; ok {
		return errors.Wrapf(common.ErrAlreadyExists, "task %s", t.Name)
	}
	return r.putTask(t)
}

// UpdateTask creates or replaces a task
func (r *Registry) UpdateTask(t *service.ServiceTask) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.putTask(t)
}

func (r *Registry) putTask(t *service.ServiceTask) error {
	for _, group := range t.Groups {
		if _, ok := r.groups[group]; !ok {
			return errors.Wrapf(common.ErrNotFound, "task %s: group %s", t.Name, group)
		}
	}
	if err := r.write(taskPrefix+t.Name, t.ToDocument()); err != nil {
		return err
	}
	r.tasks[t.Name] = cloneTask(t)
	return nil
}

// RemoveTask removes a task
func (r *Registry) RemoveTask(name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.tasks[name]; !ok {
		return errors.Wrapf(common.ErrNotFound, "task %s", name)
	}
	if err := r.delete(taskPrefix + name); err != nil {
		return err
	}
	delete(r.tasks, name)
	return nil
}

// Task returns a copy of the task
func (r *Registry) Task(name string) (*service.ServiceTask, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	t, ok := r.tasks[name]
	if !ok {
		return nil, false
	}
	return cloneTask(t), true
}

// Tasks returns copies of all tasks sorted by name
func (r *Registry) Tasks() []*service.ServiceTask {
	r.lock.RLock()
	res := make([]*service.ServiceTask, 0, len(r.tasks))
	for _, t := range r.tasks {
		res = append(res, cloneTask(t))
	}
	r.lock.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func cloneGroup(g *service.GroupConfiguration) *service.GroupConfiguration {
	cp := *g
	cp.ServiceConfigurationBase = g.ServiceConfigurationBase.Clone()
	return &cp
}

func cloneTask(t *service.ServiceTask) *service.ServiceTask {
	cp := *t
	cp.ServiceConfigurationBase = t.ServiceConfigurationBase.Clone()
	cp.Groups = append([]string{}, t.Groups...)
	cp.Process.JvmOptions = append([]string{}, t.Process.JvmOptions...)
	return &cp
}
