package handler

import (
	"relaychat/internal/app/chat"
	"relaychat/internal/configs"
)

// AppDeps bundles the shared dependencies handed to every handler.
type AppDeps struct {
	Registry *chat.Registry
	Config   *configs.AppConfig
}
