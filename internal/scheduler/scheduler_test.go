package scheduler

import (
	"context"
	"testing"

	"github.com/snowrank/snowrank/internal/pipeline"
	"go.uber.org/zap"
)

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := New(&pipeline.Runner{}, "not a cron expression", zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err == nil {
		t.Error("invalid schedule should fail to register")
	}
}

func TestStartAcceptsStandardSchedule(t *testing.T) {
	s := New(&pipeline.Runner{}, "0 6 * * *", zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
}
