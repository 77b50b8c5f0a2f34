package worker

import (
	"context"
	"sync"

	"github.com/spec-kit/netcafe-service/internal/service"
)

// StartAuditWorker registers audit handlers and forwards events until ctx is
// done. The returned WaitGroup completes once the queue is flushed.
func StartAuditWorker(ctx context.Context, auditService *service.AuditService) *sync.WaitGroup {
	var wg sync.WaitGroup
	if auditService == nil {
		return &wg
	}
	auditService.RegisterHandlers()
	wg.Add(1)
	go func() {
		defer wg.Done()
		auditService.Run(ctx)
	}()
	return &wg
}
