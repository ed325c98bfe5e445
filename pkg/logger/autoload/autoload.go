// Package autoload configures the global logger from LOG_* variables on
// import.
package autoload

import (
	configx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/config"
	logx "github.com/tanpawarit/Chative-Dining-Orchestrator/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
