package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/bmizerany/assert"
)

func TestConfigurationBaseRejectsDuplicates(t *testing.T) {
	var b ServiceConfigurationBase
	lobby := NewServiceTemplate("Lobby", "test1", "local")
	assert.Equal(t, true, b.AddTemplate(lobby))
	assert.Equal(t, false, b.AddTemplate(lobby))
	assert.Equal(t, true, b.AddInclusion(ServiceRemoteInclusion{URL: "https://x/a.jar", Destination: "plugins/a.jar"}))
	assert.Equal(t, false, b.AddInclusion(ServiceRemoteInclusion{URL: "https://x/a.jar", Destination: "plugins/a.jar", Checksum: "ff"}))
	assert.Equal(t, true, b.AddDeployment(ServiceDeployment{Template: lobby}))
	assert.Equal(t, false, b.AddDeployment(ServiceDeployment{Template: lobby, ExcludedFiles: []string{"logs/"}}))

	var other ServiceConfigurationBase
	other.AddTemplate(lobby)
	other.AddTemplate(NewServiceTemplate("Global", "server", "local"))
	b.Merge(other)
	assert.Equal(t, 2, len(b.Templates))
	assert.Equal(t, lobby, b.Templates[0])
}

func TestGroupConfigurationDocument(t *testing.T) {
	g := NewGroupConfiguration("PrivateServerGroup")
	g.AddTemplate(NewServiceTemplate("Lobby", "test1", "local"))
	g.AddDeployment(ServiceDeployment{Template: NewServiceTemplate("Lobby", "backup", "local"), ExcludedFiles: []string{"cache/"}})

	data, err := document.Encode(document.MSG_PACKER, g.ToDocument(), nil)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := document.Decode(document.MSG_PACKER, data)
	if err != nil {
		t.Fatal(err)
	}
	back := GroupConfigurationFromDocument(doc)
	assert.Equal(t, g.Name, back.Name)
	assert.Equal(t, g.Templates, back.Templates)
	assert.Equal(t, []string{"cache/"}, back.Deployments[0].ExcludedFiles)
}

func TestLifeCycleTransitions(t *testing.T) {
	assert.Equal(t, true, PREPARED.CanTransitionTo(RUNNING))
	assert.Equal(t, true, PREPARED.CanTransitionTo(DELETED))
	assert.Equal(t, true, RUNNING.CanTransitionTo(STOPPED))
	assert.Equal(t, true, STOPPED.CanTransitionTo(DELETED))
	assert.Equal(t, false, STOPPED.CanTransitionTo(RUNNING))
	assert.Equal(t, false, RUNNING.CanTransitionTo(RUNNING))
	assert.Equal(t, false, DELETED.CanTransitionTo(PREPARED))
}

func TestEnvironmentType(t *testing.T) {
	et, err := ParseEnvironmentType("minecraft_server")
	assert.Equal(t, nil, err)
	assert.Equal(t, MINECRAFT_SERVER, et)
	_, err = ParseEnvironmentType("unknown")
	assert.NotEqual(t, nil, err)
	assert.Equal(t, true, VELOCITY.IsProxy())

	pc := ProcessConfiguration{Environment: MINECRAFT_SERVER, MaxHeapMemoryMB: 256}
	assert.Equal(t, []string{"java", "-Xmx256M", "-jar", "spigot.jar", "nogui"}, pc.Command(""))
}

func TestSnapshotDocument(t *testing.T) {
	now := time.UnixMilli(time.Now().UnixMilli())
	id := ServiceId{UniqueId: uuid.New(), TaskName: "Lobby", NodeUniqueId: "Node-1", TaskServiceId: 3}
	snapshot := ServiceInfoSnapshot{
		CreationTime: now,
		ServiceId:    id,
		Address:      HostAndPort{"127.0.0.1", 44955},
		LifeCycle:    PREPARED,
		Properties:   document.Of("Online", true),
		LastUpdate:   now,
		Configuration: ServiceConfiguration{
			ServiceId: id,
			Groups:    []string{"Lobby"},
			Process:   ProcessConfiguration{Environment: MINECRAFT_SERVER, MaxHeapMemoryMB: 512},
			Port:      44955,
		},
	}
	snapshot.Configuration.AddTemplate(NewServiceTemplate("Lobby", "default", "local"))

	data, _ := document.Encode(document.MSG_PACKER, snapshot.ToDocument(), nil)
	doc, _ := document.Decode(document.MSG_PACKER, data)
	back, err := ServiceInfoSnapshotFromDocument(doc)
	assert.Equal(t, nil, err)
	assert.Equal(t, "Lobby-3", back.Name())
	assert.Equal(t, id, back.ServiceId)
	assert.Equal(t, snapshot.Address, back.Address)
	assert.Equal(t, PREPARED, back.LifeCycle)
	assert.Equal(t, true, back.Properties.GetBool("Online"))
	assert.Equal(t, now, back.LastUpdate)
	assert.Equal(t, 512, back.Configuration.Process.MaxHeapMemoryMB)
	assert.Equal(t, snapshot.Configuration.Templates, back.Configuration.Templates)
	assert.Equal(t, true, back.HasGroup("Lobby"))

	running := snapshot.WithLifeCycle(RUNNING, now.Add(time.Second))
	assert.Equal(t, PREPARED, snapshot.LifeCycle)
	assert.Equal(t, RUNNING, running.LifeCycle)
	running.Configuration.AddTemplate(NewServiceTemplate("x", "y", "local"))
	assert.Equal(t, 1, len(snapshot.Configuration.Templates))
}
