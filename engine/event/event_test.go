package event

import (
	"testing"

	"github.com/JavaProjektDEV/CloudNet-v3/engine/module/types"
	"github.com/bmizerany/assert"
)

func TestPublishOrderAndCancel(t *testing.T) {
	bus := NewBus()
	var calls []string
	bus.Register(MODULE_PRE_INSTALL_DEPENDENCY, func(ev *Event) {
		calls = append(calls, "first:"+ev.Dependency.Key())
	})
	bus.Register(MODULE_PRE_INSTALL_DEPENDENCY, func(ev *Event) {
		calls = append(calls, "second")
		ev.Cancelled = true
	})
	bus.Register(MODULE_PRE_INSTALL_DEPENDENCY, func(ev *Event) {
		calls = append(calls, "third")
	})
	bus.Register(SERVICE_REGISTER, func(ev *Event) {
		calls = append(calls, "other kind")
	})

	dep := types.ModuleDependency{Group: "g", Name: "n", Version: "1"}
	cancelled := bus.Publish(&Event{Kind: MODULE_PRE_INSTALL_DEPENDENCY, Dependency: &dep})
	assert.Equal(t, true, cancelled)
	assert.Equal(t, []string{"first:g:n:1", "second"}, calls)
}

func TestUnregisterAndPanic(t *testing.T) {
	bus := NewBus()
	var n int
	bus.Register(CHANNEL_AUTH, func(ev *Event) { panic("boom") })
	unregister := bus.Register(CHANNEL_AUTH, func(ev *Event) { n++ })

	assert.Equal(t, false, bus.Publish(&Event{Kind: CHANNEL_AUTH, Peer: "Lobby-1"}))
	assert.Equal(t, 1, n)
	unregister()
	bus.Publish(&Event{Kind: CHANNEL_AUTH})
	assert.Equal(t, 1, n)
	assert.Equal(t, "ChannelAuth", CHANNEL_AUTH.String())
}
