package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/testutil"
)

type publishedEvent struct {
	key     string
	payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{key: routingKey, payload: payload})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.key)
	}
	return keys
}

type testEnv struct {
	f        *testutil.Fixture
	events   *recordingPublisher
	clock    time.Time
	access   *AccessService
	course   *CourseService
	progress *ProgressService
	quiz     *QuizService
	storage  *StorageService
	delivery *DeliveryService
	quizRepo *repository.QuizRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	f := testutil.Seed(t, db)

	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	quizRepo := repository.NewQuizRepository(db)

	cfg := &config.Config{Storage: config.StorageConfig{Type: "local", LocalPath: t.TempDir(), ChunkSize: 64}}

	env := &testEnv{
		f:        f,
		events:   &recordingPublisher{},
		clock:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		quizRepo: quizRepo,
	}
	now := func() time.Time { return env.clock }

	env.access = NewAccessService(courseRepo, enrollmentRepo)
	env.course = NewCourseService(env.access, courseRepo, enrollmentRepo, progressRepo, quizRepo)
	env.progress = NewProgressService(courseRepo, enrollmentRepo, progressRepo, env.events, db)
	env.progress.Now = now
	env.quiz = NewQuizService(env.access, quizRepo, enrollmentRepo, env.events, db)
	env.quiz.Now = now
	env.storage = NewStorageService(cfg)
	env.delivery = NewDeliveryService(env.access, env.storage, cfg.Storage.ChunkSize)
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}

func actorOf(u model.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}
