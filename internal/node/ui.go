package node

import (
	"github.com/codefionn/wifichat/internal/actor"
	"github.com/codefionn/wifichat/internal/wire"
)

// fanoutUI forwards every chat event to each of its UIs in order.
type fanoutUI []actor.UI

func (f fanoutUI) OnMessageReceived(row wire.Row) {
	for _, ui := range f {
		ui.OnMessageReceived(row)
	}
}

func (f fanoutUI) OnConnectionEstablished() {
	for _, ui := range f {
		ui.OnConnectionEstablished()
	}
}

func (f fanoutUI) OnConnectionLost() {
	for _, ui := range f {
		ui.OnConnectionLost()
	}
}
