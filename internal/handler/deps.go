package handler

import (
	"pulsechat/internal/app/chat"
	"pulsechat/internal/configs"
)

// AppDeps bundles the dependencies shared by all handlers.
type AppDeps struct {
	Hub    *chat.Hub
	Config *configs.AppConfig
}
