package service

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/sma-activity-api/internal/models"
	"github.com/noah-isme/sma-activity-api/internal/realtime"
	"github.com/noah-isme/sma-activity-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Activity{}, &models.Registration{}, &models.Notification{}))
	return db
}

type sinkCall struct {
	Group  string
	UserID string
	Event  realtime.Event
}

// recordingSink captures every delivery instead of pushing it to live
// connections.
type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *recordingSink) BroadcastGroup(group string, event realtime.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{Group: group, Event: event})
}

func (s *recordingSink) SendToUser(userID string, event realtime.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{UserID: userID, Event: event})
}

func (s *recordingSink) byType(eventType string) []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkCall
	for _, call := range s.calls {
		if call.Event.Type == eventType {
			out = append(out, call)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// newTestStack wires the real services over a per-test database and a
// recording sink, without redis or nats.
func newTestStack(t *testing.T) (*gorm.DB, *recordingSink, NotificationService, RegistrationService, ActivityService) {
	t.Helper()

	db := setupServiceTestDB(t)
	sink := &recordingSink{}

	notifier := NewNotificationService(repository.NewNotificationRepository(db), sink, nil, "", nil, testLogger())
	registrations := NewRegistrationService(repository.NewRegistrationRepository(db), repository.NewActivityRepository(db), notifier, testValidator(), testLogger())
	activities := NewActivityService(repository.NewActivityRepository(db), repository.NewRegistrationRepository(db), notifier, nil, time.Second, testValidator(), testLogger())

	return db, sink, notifier, registrations, activities
}

func mustRelayPayload(t *testing.T, event relayEvent) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func seedServiceActivity(t *testing.T, db *gorm.DB, capacity int, requireApproval bool) models.Activity {
	t.Helper()
	now := time.Now()
	activity := models.Activity{
		Title:           "Robotics Workshop",
		Location:        "Lab 2",
		StartTime:       now.Add(24 * time.Hour),
		EndTime:         now.Add(26 * time.Hour),
		MaxParticipants: capacity,
		Status:          models.ActivityOpen,
		RequireApproval: requireApproval,
		OwnerID:         "teacher-1",
	}
	require.NoError(t, db.Create(&activity).Error)
	return activity
}
