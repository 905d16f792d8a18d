package main

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/network"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/noderegistry"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

var ack = document.Of("success", true)

func (cn *CloudNet) registerHandlers() {
	qp := cn.queries
	qp.RegisterHandler(consts.NODE_SUB_CHANNEL, consts.OP_GET_SERVICE_CONFIGURATION, cn.handleGetServiceConfiguration)
	qp.RegisterHandler(consts.NODE_SUB_CHANNEL, consts.OP_GET_CLOUD_SERVICES, cn.handleGetCloudServices)
	qp.RegisterHandler(consts.NODE_SUB_CHANNEL, consts.OP_GET_NODE_SNAPSHOTS, cn.handleGetNodeSnapshots)
	qp.RegisterHandler(consts.NODE_SUB_CHANNEL, consts.OP_CREATE_SERVICE, cn.handleCreateService)
	qp.RegisterHandler(consts.NODE_SUB_CHANNEL, consts.OP_START_SERVICE, cn.serviceCommand(cn.services.StartCloudService))
	qp.RegisterHandler(consts.NODE_SUB_CHANNEL, consts.OP_STOP_CLOUD_SERVICE, cn.serviceCommand(cn.services.StopCloudService))
	qp.RegisterHandler(consts.NODE_SUB_CHANNEL, consts.OP_DELETE_SERVICE, cn.serviceCommand(cn.services.DeleteCloudService))
	qp.RegisterHandler(consts.NODE_SUB_CHANNEL, consts.OP_ADD_SERVICE_TEMPLATE, cn.handleAddServiceTemplate)
}

// handleGetServiceConfiguration returns the configuration of the named service, by default the one of the calling wrapper
func (cn *CloudNet) handleGetServiceConfiguration(ch *network.Channel, args document.Document) (document.Document, error) {
	name := args.GetString("name")
	if name == "" {
		name = ch.Name()
	}
	s, ok := cn.services.GetCloudServiceByName(name)
	if !ok {
		return nil, errors.Wrapf(common.ErrNotFound, "service %s", name)
	}
	return s.Configuration.ToDocument(), nil
}

// handleGetCloudServices lists the services of the cluster, optionally of one task or group
func (cn *CloudNet) handleGetCloudServices(ch *network.Channel, args document.Document) (document.Document, error) {
	task, group := args.GetString("task"), args.GetString("group")
	var services []service.ServiceInfoSnapshot
	for _, s := range cn.allServices() {
		if task != "" && s.ServiceId.TaskName != task {
			continue
		}
		if group != "" && !s.HasGroup(group) {
			continue
		}
		services = append(services, s)
	}
	return document.Of("services", document.Documents(services)), nil
}

func (cn *CloudNet) handleGetNodeSnapshots(ch *network.Channel, args document.Document) (document.Document, error) {
	return document.Of("nodes", document.Documents(cn.nodes.Nodes())), nil
}

// handleCreateService creates a service of a registered task by name, or of a task forwarded by another node
func (cn *CloudNet) handleCreateService(ch *network.Channel, args document.Document) (document.Document, error) {
	var s service.ServiceInfoSnapshot
	var err error
	if args.Has("task") {
		s, err = cn.services.CreateLocalCloudService(service.ServiceTaskFromDocument(args.GetDocument("task")))
	} else {
		s, err = cn.services.CreateCloudServiceByTask(args.GetString("taskName"))
	}
	if err != nil {
		return nil, err
	}
	return s.ToDocument(), nil
}

func (cn *CloudNet) serviceCommand(command func(id uuid.UUID) error) func(ch *network.Channel, args document.Document) (document.Document, error) {
	return func(ch *network.Channel, args document.Document) (document.Document, error) {
		id, err := uuid.Parse(args.GetString("uniqueId"))
		if err != nil {
			return nil, errors.Wrap(err, "service unique id")
		}
		if err := command(id); err != nil {
			return nil, err
		}
		return ack, nil
	}
}

func (cn *CloudNet) handleAddServiceTemplate(ch *network.Channel, args document.Document) (document.Document, error) {
	id, err := uuid.Parse(args.GetString("uniqueId"))
	if err != nil {
		return nil, errors.Wrap(err, "service unique id")
	}
	template := service.ServiceTemplateFromDocument(args.GetDocument("template"))
	if err := cn.services.AddServiceTemplateToCloudService(id, template); err != nil {
		return nil, err
	}
	return ack, nil
}

func (cn *CloudNet) registerListeners() {
	cn.server.AddAuthListener(cn.onChannelAuthenticated)

	cn.messenger.Listen(consts.INTERNAL_CHANNEL, consts.MSG_UPDATE_SERVICE_INFO, func(msg *event.ChannelMessage) {
		s, err := service.ServiceInfoSnapshotFromDocument(msg.Data)
		if err != nil {
			cnlog.Warnf("malformed service info from %s: %v", msg.Sender, err)
			return
		}
		if s.Name() != msg.Sender {
			cnlog.Warnf("%s sent service info of %s", msg.Sender, s.Name())
			return
		}
		if err := cn.services.UpdateServiceInfo(s); err != nil {
			cnlog.Debugf("service info of %s dropped: %v", s.Name(), err)
		}
	})

	cn.messenger.Listen(consts.INTERNAL_CHANNEL, consts.MSG_SERVICE_INFO_UPDATE, func(msg *event.ChannelMessage) {
		s, err := service.ServiceInfoSnapshotFromDocument(msg.Data)
		if err != nil {
			cnlog.Warnf("malformed service snapshot from %s: %v", msg.Sender, err)
			return
		}
		cn.updateClusterService(s)
	})

	cn.messenger.Listen(consts.INTERNAL_CHANNEL, consts.MSG_NODE_SNAPSHOT, func(msg *event.ChannelMessage) {
		snapshot := noderegistry.NodeSnapshotFromDocument(msg.Data)
		if snapshot.Node.UniqueId != msg.Sender {
			cnlog.Warnf("%s sent the snapshot of node %s", msg.Sender, snapshot.Node.UniqueId)
			return
		}
		cn.nodes.UpdateSnapshot(snapshot)
	})
}

// onChannelAuthenticated tracks wrappers and nodes connecting to the local server
func (cn *CloudNet) onChannelAuthenticated(ch *network.Channel) {
	peer := ch.Peer()
	cn.bus.Publish(&event.Event{Kind: event.CHANNEL_AUTH, Peer: peer.Name})
	ch.AddCloseListener(func(ch *network.Channel) {
		cn.bus.Publish(&event.Event{Kind: event.CHANNEL_CLOSE, Peer: peer.Name})
	})

	switch peer.Type {
	case network.PEER_WRAPPER:
		cn.services.SetConnected(peer.Name, true)
		ch.AddCloseListener(func(ch *network.Channel) {
			cn.services.SetConnected(peer.Name, false)
		})
	case network.PEER_NODE:
		cn.onNodeConnected(ch)
	}
}

// onNodeConnected exchanges the state of both nodes on a fresh node channel
func (cn *CloudNet) onNodeConnected(ch *network.Channel) {
	ch.Subscribe(consts.INTERNAL_CHANNEL)
	name := ch.Name()
	ch.AddCloseListener(func(ch *network.Channel) {
		cn.forgetClusterNode(name)
	})

	snapshot := cn.nodes.LocalSnapshot()
	if err := cn.messenger.SendChannelMessageTo(ch, consts.INTERNAL_CHANNEL, consts.MSG_NODE_SNAPSHOT, snapshot.ToDocument()); err != nil {
		cnlog.Warnf("send node snapshot to %s failed: %v", name, err)
	}
	for _, s := range cn.services.GetCloudServices() {
		if err := cn.messenger.SendChannelMessageTo(ch, consts.INTERNAL_CHANNEL, consts.MSG_SERVICE_INFO_UPDATE, s.ToDocument()); err != nil {
			cnlog.Warnf("send snapshot of %s to %s failed: %v", s.Name(), name, err)
			return
		}
	}
}
