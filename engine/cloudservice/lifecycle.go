package cloudservice

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/cnlog"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/common"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/consts"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/document"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/event"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/opmon"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/query"
	"github.com/JavaProjektDEV/CloudNet-v3/engine/service"
)

// StartCloudService materializes the working directory of a PREPARED service and launches its wrapper.
// On failure the service stays PREPARED and the error is caused by common.ErrMaterializationFailed.
func (m *Manager) StartCloudService(id uuid.UUID) error {
	cs, err := m.get(id)
	if err != nil {
		return err
	}
	cs.lock.Lock()
	defer cs.lock.Unlock()

	if cs.snapshot.LifeCycle != service.PREPARED {
		return errors.Wrapf(common.ErrInvalidLifecycleTransition, "start %s: service is %s", cs.snapshot.Name(), cs.snapshot.LifeCycle)
	}

	op := opmon.StartOperation("service.start")
	defer op.Finish(time.Second * 10)

	if err := m.materialize(context.Background(), cs); err != nil {
		cnlog.Errorf("start %s: %v", cs.snapshot.Name(), err)
		return err
	}
	proc, err := m.opts.Launcher.Launch(cs.snapshot.Configuration.Clone(), cs.workDir)
	if err != nil {
		cnlog.Errorf("start %s: %v", cs.snapshot.Name(), err)
		return errors.Wrapf(common.ErrMaterializationFailed, "launch %s: %v", cs.snapshot.Name(), err)
	}

	cs.process = proc
	cs.lastHeartbeat = m.opts.Now()
	if err := m.transition(cs, service.RUNNING); err != nil {
		return err
	}
	go m.watchProcess(cs, proc)
	return nil
}

// watchProcess stops the service when its process exits on its own
func (m *Manager) watchProcess(cs *cloudService, proc ServiceProcess) {
	<-proc.Done()
	cs.lock.Lock()
	defer cs.lock.Unlock()
	if cs.process != proc || cs.snapshot.LifeCycle != service.RUNNING {
		return
	}
	cnlog.Warnf("process %d of %s exited", proc.Pid(), cs.snapshot.Name())
	m.stop(cs)
}

// StopCloudService stops a RUNNING service and deletes it. A PREPARED service is deleted directly.
func (m *Manager) StopCloudService(id uuid.UUID) error {
	cs, err := m.get(id)
	if err != nil {
		return err
	}
	cs.lock.Lock()
	defer cs.lock.Unlock()

	switch cs.snapshot.LifeCycle {
	case service.RUNNING:
		m.stop(cs)
		return nil
	case service.PREPARED:
		m.delete(cs)
		return nil
	default:
		return errors.Wrapf(common.ErrInvalidLifecycleTransition, "stop %s: service is %s", cs.snapshot.Name(), cs.snapshot.LifeCycle)
	}
}

// DeleteCloudService stops the service from any state and deletes it
func (m *Manager) DeleteCloudService(id uuid.UUID) error {
	cs, err := m.get(id)
	if err != nil {
		return err
	}
	cs.lock.Lock()
	defer cs.lock.Unlock()

	switch cs.snapshot.LifeCycle {
	case service.RUNNING:
		m.stop(cs)
	case service.DELETED:
	default:
		m.delete(cs)
	}
	return nil
}

// stop shuts the process of a RUNNING service down, uploads its deployments and deletes it. cs.lock must be held.
func (m *Manager) stop(cs *cloudService) {
	op := opmon.StartOperation("service.stop")
	defer op.Finish(m.opts.StopGracePeriod + time.Second)

	if proc := cs.process; proc != nil && !m.stopGracefully(cs, proc) {
		if err := proc.Stop(m.opts.StopGracePeriod); err != nil {
			cnlog.Warnf("stop %s: %v, killing", cs.snapshot.Name(), err)
			if err := proc.Kill(); err != nil {
				cnlog.Errorf("kill %s: %v", cs.snapshot.Name(), err)
			}
		}
	}

	for _, deployment := range cs.snapshot.Configuration.Deployments {
		if err := m.opts.Storage.UploadDeployment(deployment, cs.workDir); err != nil {
			cnlog.Errorf("deployment %s of %s failed: %v", deployment.Template, cs.snapshot.Name(), err)
		}
	}

	cs.snapshot.Connected = false
	if err := m.transition(cs, service.STOPPED); err != nil {
		cnlog.Errorf("%v", err)
	}
	m.delete(cs)
}

// stopGracefully sends the stop command to the wrapper and reports whether the process exited within the
// grace period. cs.lock must be held.
func (m *Manager) stopGracefully(cs *cloudService, proc ServiceProcess) bool {
	select {
	case <-proc.Done():
		return true
	default:
	}

	deadline := time.NewTimer(m.opts.StopGracePeriod)
	defer deadline.Stop()
	ch := m.opts.Wrappers(cs.snapshot.Name())
	task := query.SendCallablePacketWithTimeout(m.opts.Queries, ch, consts.WRAPPER_SUB_CHANNEL, consts.OP_STOP_SERVICE,
		document.New(), m.opts.StopGracePeriod, ackMapper)
	select {
	case <-task.Done():
		if _, err := task.Result(); err != nil {
			cnlog.Debugf("stop %s: wrapper did not accept the stop command: %v", cs.snapshot.Name(), err)
			return false
		}
	case <-proc.Done():
		return true
	}

	select {
	case <-proc.Done():
		return true
	case <-deadline.C:
		cnlog.Warnf("stop %s: process did not exit within %s", cs.snapshot.Name(), m.opts.StopGracePeriod)
		return false
	}
}

// delete removes the working directory and forgets the service. cs.lock must be held.
func (m *Manager) delete(cs *cloudService) {
	if !cs.snapshot.Configuration.StaticService {
		if err := os.RemoveAll(cs.workDir); err != nil {
			cnlog.Warnf("remove working directory of %s: %v", cs.snapshot.Name(), err)
		}
	}
	if err := m.transition(cs, service.DELETED); err != nil {
		cnlog.Errorf("%v", err)
	}
	cs.process = nil
	m.forget(cs)
}

// AddServiceTemplateToCloudService adds the template to the configuration of the service. A RUNNING
// service gets the template copied by its wrapper; the call returns when the wrapper acknowledged it.
func (m *Manager) AddServiceTemplateToCloudService(id uuid.UUID, template service.ServiceTemplate) error {
	cs, err := m.get(id)
	if err != nil {
		return err
	}
	cs.lock.Lock()
	defer cs.lock.Unlock()

	switch cs.snapshot.LifeCycle {
	case service.PREPARED:
	case service.RUNNING:
		ch := m.opts.Wrappers(cs.snapshot.Name())
		task := query.SendCallablePacket(m.opts.Queries, ch, consts.WRAPPER_SUB_CHANNEL, consts.OP_INCLUDE_TEMPLATE,
			document.Of("template", map[string]interface{}(template.ToDocument())), ackMapper)
		if _, err := task.GetErr(consts.QUERY_DEFAULT_TIMEOUT); err != nil {
			return errors.Wrapf(err, "include %s into %s", template, cs.snapshot.Name())
		}
	default:
		return errors.Wrapf(common.ErrInvalidLifecycleTransition, "add template to %s: service is %s", cs.snapshot.Name(), cs.snapshot.LifeCycle)
	}

	if cs.snapshot.Configuration.AddTemplate(template) {
		if err := m.persistConfiguration(cs); err != nil {
			return err
		}
	}
	m.infoUpdated(cs)
	return nil
}

func ackMapper(doc document.Document) (bool, error) {
	if !doc.GetBool("success") {
		return false, errors.Errorf("not acknowledged: %s", doc.GetString("error"))
	}
	return true, nil
}

// infoUpdated broadcasts the snapshot of a service which changed without transition. cs.lock must be held.
func (m *Manager) infoUpdated(cs *cloudService) {
	cs.snapshot.LastUpdate = m.opts.Now()
	snapshot := cs.snapshot.Clone()
	m.broadcast(snapshot)
	m.opts.Bus.Publish(&event.Event{Kind: event.SERVICE_INFO_UPDATE, Service: &snapshot})
}

// UpdateServiceInfo applies a heartbeat of the wrapper of a RUNNING service
func (m *Manager) UpdateServiceInfo(snapshot service.ServiceInfoSnapshot) error {
	cs, err := m.get(snapshot.ServiceId.UniqueId)
	if err != nil {
		return err
	}
	cs.lock.Lock()
	defer cs.lock.Unlock()

	if cs.snapshot.LifeCycle != service.RUNNING {
		return errors.Wrapf(common.ErrInvalidLifecycleTransition, "update of %s: service is %s", cs.snapshot.Name(), cs.snapshot.LifeCycle)
	}
	cs.lastHeartbeat = m.opts.Now()
	cs.snapshot = cs.snapshot.WithProcessSnapshot(snapshot.ProcessSnapshot, cs.lastHeartbeat)
	if snapshot.Properties != nil {
		cs.snapshot.Properties = snapshot.Properties.Clone()
	}
	if snapshot.Address.Host != "" {
		cs.snapshot.Address = snapshot.Address
	}
	cs.snapshot.Connected = true
	m.infoUpdated(cs)
	return nil
}

// SetConnected records whether the wrapper of the named service holds a channel to the node
func (m *Manager) SetConnected(serviceName string, connected bool) {
	s, ok := m.GetCloudServiceByName(serviceName)
	if !ok {
		return
	}
	cs, err := m.get(s.ServiceId.UniqueId)
	if err != nil {
		return
	}
	cs.lock.Lock()
	defer cs.lock.Unlock()
	if cs.snapshot.LifeCycle != service.RUNNING || cs.snapshot.Connected == connected {
		return
	}
	cs.snapshot.Connected = connected
	if connected {
		cs.lastHeartbeat = m.opts.Now()
	}
	m.infoUpdated(cs)
}

// RefreshServiceInfo asks the wrapper of a RUNNING service for its current snapshot and applies it.
// Services in other states return their last snapshot.
func (m *Manager) RefreshServiceInfo(id uuid.UUID) (service.ServiceInfoSnapshot, error) {
	current, ok := m.GetCloudService(id)
	if !ok {
		return service.ServiceInfoSnapshot{}, errors.Wrapf(common.ErrNotFound, "service %s", id)
	}
	if current.LifeCycle != service.RUNNING {
		return current, nil
	}

	ch := m.opts.Wrappers(current.Name())
	task := query.SendCallablePacket(m.opts.Queries, ch, consts.WRAPPER_SUB_CHANNEL, consts.OP_GET_SERVICE_INFO_SNAPSHOT,
		nil, service.ServiceInfoSnapshotFromDocument)
	remote, err := task.GetErr(consts.QUERY_DEFAULT_TIMEOUT)
	if err != nil {
		return current, err
	}
	remote.ServiceId = current.ServiceId
	if err := m.UpdateServiceInfo(remote); err != nil {
		return current, err
	}
	refreshed, _ := m.GetCloudService(id)
	return refreshed, nil
}

// CheckHeartbeats stops the RUNNING services which sent no heartbeat for consts.SERVICE_HEARTBEAT_TIMEOUT
// and returns their names
func (m *Manager) CheckHeartbeats(now time.Time) []string {
	var expired []uuid.UUID
	var names []string
	m.lock.RLock()
	all := make([]*cloudService, 0, len(m.services))
	for _, cs := range m.services {
		all = append(all, cs)
	}
	m.lock.RUnlock()

	for _, cs := range all {
		cs.lock.Lock()
		if cs.snapshot.LifeCycle == service.RUNNING && now.Sub(cs.lastHeartbeat) > consts.SERVICE_HEARTBEAT_TIMEOUT {
			expired = append(expired, cs.id.UniqueId)
			names = append(names, cs.snapshot.Name())
		}
		cs.lock.Unlock()
	}

	for i, id := range expired {
		cnlog.Warnf("service %s sent no heartbeat for %s, stopping", names[i], consts.SERVICE_HEARTBEAT_TIMEOUT)
		if err := m.StopCloudService(id); err != nil {
			cnlog.Errorf("stop %s: %v", names[i], err)
		}
	}
	return names
}

// StopAll stops every service, used when the node shuts down
func (m *Manager) StopAll() {
	for _, s := range m.GetCloudServices() {
		if err := m.DeleteCloudService(s.ServiceId.UniqueId); err != nil {
			cnlog.Errorf("stop %s: %v", s.Name(), err)
		}
	}
}
