package registry

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/kvdb"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

func openTestKVDB(t *testing.T) *kvdb.KVDB {
	db, err := kvdb.Open(kvdb.Options{Type: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestGroupsAndTasksPersist(t *testing.T) {
	db := openTestKVDB(t)
	r, err := Open(db)
	assert.Equal(t, nil, err)

	group := service.NewGroupConfiguration("PrivateServerGroup")
	group.AddTemplate(service.NewServiceTemplate("PrivateServerGroup", "default", "local"))
	assert.Equal(t, nil, r.AddGroup(group))
	assert.Equal(t, common.ErrAlreadyExists, errors.Cause(r.AddGroup(group)))

	task := &service.ServiceTask{
		Name:   "PrivateServer",
		Groups: []string{"PrivateServerGroup"},
		Process: service.ProcessConfiguration{
			Environment:     service.MINECRAFT_SERVER,
			MaxHeapMemoryMB: 512,
		},
	}
	assert.Equal(t, nil, r.AddTask(task))

	missing := &service.ServiceTask{Name: "Broken", Groups: []string{"Nope"}}
	assert.Equal(t, common.ErrNotFound, errors.Cause(r.AddTask(missing)))

	reopened, err := Open(db)
	assert.Equal(t, nil, err)
	g, ok := reopened.Group("PrivateServerGroup")
	assert.T(t, ok)
	assert.Equal(t, 1, len(g.Templates))
	tk, ok := reopened.Task("PrivateServer")
	assert.T(t, ok)
	assert.Equal(t, 512, tk.Process.MaxHeapMemoryMB)
	assert.Equal(t, []string{"PrivateServerGroup"}, tk.Groups)
	assert.Equal(t, 1, len(reopened.Tasks()))

	assert.Equal(t, nil, reopened.RemoveTask("PrivateServer"))
	assert.Equal(t, nil, reopened.RemoveGroup("PrivateServerGroup"))
	assert.Equal(t, common.ErrNotFound, errors.Cause(reopened.RemoveGroup("PrivateServerGroup")))

	again, err := Open(db)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, len(again.Groups()))
	assert.Equal(t, 0, len(again.Tasks()))
}

func TestReturnedGroupsAreCopies(t *testing.T) {
	r, _ := Open(openTestKVDB(t))
	r.AddGroup(service.NewGroupConfiguration("Lobby"))

	g, _ := r.Group("Lobby")
	g.AddTemplate(service.NewServiceTemplate("Lobby", "x", "local"))

	stored, _ := r.Group("Lobby")
	assert.Equal(t, 0, len(stored.Templates))
}
