package service

import (
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobService 后台定时任务
type JobService struct {
	Quiz *QuizService
	Spec string
	cron *cron.Cron
}

func NewJobService(quiz *QuizService, spec string) *JobService {
	if spec == "" {
		spec = "@every 5m"
	}
	return &JobService{Quiz: quiz, Spec: spec}
}

// Start 注册并启动定时任务
func (j *JobService) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.Spec, j.RefreshAbandonedAttempts); err != nil {
		return err
	}
	j.cron.Start()
	logger.Log.Info("cron scheduler started", zap.String("abandonedAttemptSpec", j.Spec))
	return nil
}

// Stop 等待正在执行的任务结束
func (j *JobService) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// RefreshAbandonedAttempts 更新已超时未提交作答数量的指标，不修改作答记录
func (j *JobService) RefreshAbandonedAttempts() {
	count, err := j.Quiz.CountAbandonedAttempts()
	if err != nil {
		logger.Log.Error("count abandoned attempts failed", zap.Error(err))
		return
	}
	monitoring.AbandonedAttempts.Set(float64(count))
}
