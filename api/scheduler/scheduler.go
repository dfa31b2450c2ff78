package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/chat"
	"github.com/darkconsole/console-chat/databases"
	"github.com/darkconsole/console-chat/logging"
)

// RetentionSpec runs the community sweep daily at 3 AM UTC
const RetentionSpec = "0 3 * * *"

// Scheduler handles periodic background jobs for the relay
type Scheduler struct {
	cron          *cron.Cron
	DB            databases.ChatMessageDatabase
	RetentionDays int
	// OnDeleted is told how many messages a sweep removed.
	OnDeleted  func(n int64)
	now        func() time.Time
	instanceID string
	log        *zap.SugaredLogger
}

// NewScheduler creates a new scheduler instance
func NewScheduler(db databases.ChatMessageDatabase, retentionDays int) *Scheduler {
	// Heroku sets DYNO to "web.1", "web.2", etc.
	instanceID := os.Getenv("DYNO")
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:          cron.New(cron.WithLocation(time.UTC)),
		DB:            db,
		RetentionDays: retentionDays,
		now:           time.Now,
		instanceID:    instanceID,
		log:           logging.New("scheduler"),
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() error {
	if s.RetentionDays <= 0 {
		s.log.Info("community retention disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(RetentionSpec, s.sweep); err != nil {
		s.log.Errorw("failed to register retention job", "error", err)
		return err
	}
	s.cron.Start()
	s.log.Infow("retention scheduler started", "days", s.RetentionDays, "instance", s.instanceID)
	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("retention scheduler stopped")
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.PurgeCommunity(ctx); err != nil {
		s.log.Errorw("community retention sweep failed", "error", err)
	}
}

// PurgeCommunity deletes community room messages older than the retention window
func (s *Scheduler) PurgeCommunity(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-time.Duration(s.RetentionDays) * 24 * time.Hour)
	filter := bson.M{
		"roomId":    chat.CommunityRoomID,
		"createdAt": bson.M{"$lt": primitive.NewDateTimeFromTime(cutoff)},
	}
	n, err := s.DB.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	s.log.Infow("community retention sweep", "deleted", n, "cutoff", cutoff, "instance", s.instanceID)
	if s.OnDeleted != nil && n > 0 {
		s.OnDeleted(n)
	}
	return n, nil
}
