package logger

import (
	"go.uber.org/zap"
)

// New builds the process-wide logger. Debug mode gets the human readable
// development encoder, everything else gets JSON.
func New(mode string) (*zap.Logger, error) {
	if mode == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
