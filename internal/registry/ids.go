package registry

import "Recipe-Chain/internal/model"

// 核心组件在注册表中的固定 id。
var (
	StrategyExecutorID = model.NameID("StrategyExecutorID")
	RecipeExecutorID   = model.NameID("RecipeExecutor")
	ProxyAuthID        = model.NameID("ProxyAuth")
	BotAuthID          = model.NameID("BotAuth")
	SubStorageID       = model.NameID("SubStorage")
	StrategyStorageID  = model.NameID("StrategyStorage")
	BundleStorageID    = model.NameID("BundleStorage")
)
