// Package trigger 提供函数的定时触发。
// 带 cron 表达式的活跃函数由进程内调度器按表达式触发，
// 触发走与 HTTP 入口相同的顶层调用路径（含审计）。
package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/domain"
	"github.com/halofn/halo/internal/faas"
)

// CronManager 管理定时任务触发器。
type CronManager struct {
	cron    *cron.Cron
	repo    domain.FunctionRepository
	svc     *faas.Service
	logger  *logrus.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID // functionID -> cronEntryID
}

// NewCronManager 创建一个新的 CronManager。
func NewCronManager(repo domain.FunctionRepository, svc *faas.Service, logger *logrus.Logger) *CronManager {
	return &CronManager{
		cron:    cron.New(cron.WithSeconds()), // 支持秒级
		repo:    repo,
		svc:     svc,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Start 启动调度器并从存储加载现有任务。
func (cm *CronManager) Start() error {
	cm.cron.Start()
	cm.logger.Info("Cron manager started")

	return cm.ReloadAll()
}

// ReloadAll 从存储重新加载所有定时任务。
func (cm *CronManager) ReloadAll() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, entryID := range cm.entries {
		cm.cron.Remove(entryID)
	}
	cm.entries = make(map[string]cron.EntryID)

	// 分页加载所有函数并筛选
	offset := 0
	limit := 100
	for {
		fns, total, err := cm.repo.List(offset, limit)
		if err != nil {
			return err
		}

		for _, fn := range fns {
			if fn.CronExpression != "" && fn.Status == domain.FunctionStatusActive {
				cm.addFunction(fn)
			}
		}

		offset += len(fns)
		if offset >= total || len(fns) == 0 {
			break
		}
	}

	cm.logger.WithField("count", len(cm.entries)).Info("Loaded cron tasks from store")
	return nil
}

// AddOrUpdateFunction 添加或更新函数的定时任务。
func (cm *CronManager) AddOrUpdateFunction(fn *domain.Function) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if entryID, ok := cm.entries[fn.ID]; ok {
		cm.cron.Remove(entryID)
		delete(cm.entries, fn.ID)
	}

	if fn.CronExpression != "" && fn.Status == domain.FunctionStatusActive {
		cm.addFunction(fn)
	}
}

// RemoveFunction 移除函数的定时任务。
func (cm *CronManager) RemoveFunction(functionID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if entryID, ok := cm.entries[functionID]; ok {
		cm.cron.Remove(entryID)
		delete(cm.entries, functionID)
	}
}

// addFunction 将函数添加到调度器。调用前必须持有 cm.mu 锁。
// 触发时按 ID 重新解析函数，保证执行的是当前版本的编译产物。
func (cm *CronManager) addFunction(fn *domain.Function) {
	funcID := fn.ID
	entryID, err := cm.cron.AddFunc(fn.CronExpression, func() {
		current, err := cm.repo.GetByID(funcID)
		if err != nil {
			cm.logger.WithError(err).WithField("function_id", funcID).Error("Cron function no longer resolvable")
			return
		}

		cm.logger.WithFields(logrus.Fields{
			"function_id":   current.ID,
			"function_name": current.Name,
			"cron":          current.CronExpression,
		}).Info("Triggering cron function")

		fnCtx := domain.FunctionContext{
			Body: map[string]interface{}{
				"trigger": "cron",
				"cron":    current.CronExpression,
				"time":    time.Now().Format(time.RFC3339),
			},
			RequestID: "cron_" + current.ID,
			Method:    "trigger",
		}

		if _, err := cm.svc.Invoke(context.Background(), current, fnCtx); err != nil {
			cm.logger.WithError(err).WithField("function_id", current.ID).Error("Failed to invoke cron function")
		}
	})

	if err != nil {
		cm.logger.WithError(err).WithFields(logrus.Fields{
			"function_id": fn.ID,
			"cron":        fn.CronExpression,
		}).Error("Failed to add cron function")
		return
	}

	cm.entries[fn.ID] = entryID
}

// Stop 停止调度器。
func (cm *CronManager) Stop() {
	cm.cron.Stop()
	cm.logger.Info("Cron manager stopped")
}
