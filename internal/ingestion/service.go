package ingestion

import (
	"github.com/aevon-lab/project-tally/internal/aggregation"
	"github.com/aevon-lab/project-tally/internal/core/storage"
	"github.com/aevon-lab/project-tally/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Service accepts change batches from the content subsystem and applies each
// one in its own transaction.
type Service struct {
	runner           storage.TxRunner
	dispatcher       *aggregation.Dispatcher
	metrics          *metrics.Collector
	retry            RetryPolicy
	maxBodySizeBytes int
}

func NewService(runner storage.TxRunner, dispatcher *aggregation.Dispatcher, collector *metrics.Collector, retry RetryPolicy, maxBodySizeMB int) *Service {
	if runner == nil {
		panic("ingestion: runner must not be nil")
	}
	if dispatcher == nil {
		panic("ingestion: dispatcher must not be nil")
	}
	if collector == nil {
		panic("ingestion: metrics collector must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		runner:           runner,
		dispatcher:       dispatcher,
		metrics:          collector,
		retry:            retry.normalized(),
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/changes", s.ChangeHandler)
}
