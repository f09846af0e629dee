package tui

import (
	"github.com/Dicklesworthstone/chatcast/internal/api"
	"github.com/Dicklesworthstone/chatcast/internal/broadcast"
)

type statusLoadedMsg struct {
	status *api.StatusResponse
	err    error
}

type broadcastDoneMsg struct {
	result *broadcast.Result
	err    error
}

// settingsChangedMsg follows a toggle or layout change.
type settingsChangedMsg struct {
	status *api.StatusResponse
	notice string
	err    error
}

type statusTickMsg struct{}

type noticeExpiredMsg struct {
	seq int
}
