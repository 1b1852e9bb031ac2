package worker

import (
	"os"
	"strings"

	"assistchat/internal/observability"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("ASSISTCHAT_WORKER_DEBUG"), "1")

func debugLog(msg string, args ...any) {
	if workerDebugEnabled {
		observability.Logger().Info("worker: "+msg, args...)
	}
}
