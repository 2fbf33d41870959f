// Package domain 定义了云函数引擎的核心领域模型。
package domain

import "time"

// FunctionLog 表示一条嵌套调用的审计记录。
// 每次成功的嵌套调用在执行完成后立即写入一条记录，此后不再更新。
type FunctionLog struct {
	// ID 是记录的唯一标识符
	ID string `json:"id"`
	// RequestID 是合成的请求标识，格式为 "func_{被调函数ID}"（并非调用方自身的请求 ID）
	RequestID string `json:"request_id"`
	// FuncID 是被调函数的 ID
	FuncID string `json:"func_id"`
	// FuncName 是被调函数的名称
	FuncName string `json:"func_name"`
	// Logs 是执行日志行（首行为追踪行）
	Logs []string `json:"logs"`
	// TimeUsage 是执行耗时（单位：毫秒）
	TimeUsage int64 `json:"time_usage"`
	// CreatedAt 是记录创建时间
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt 是记录更新时间；记录创建后不更新，与 CreatedAt 相同
	UpdatedAt time.Time `json:"updated_at"`
	// CreatedBy 记录被调函数自身的 ID，作为来源标记
	CreatedBy string `json:"created_by"`
}

// FunctionLogRepository 定义了审计日志存储的接口。
type FunctionLogRepository interface {
	// Insert 写入一条审计记录
	Insert(entry *FunctionLog) error
	// ListByFunction 根据函数 ID 分页获取审计记录，返回记录列表、总数和可能的错误
	ListByFunction(funcID string, offset, limit int) ([]*FunctionLog, int, error)
	// ListRecent 获取最近的审计记录（按创建时间降序）
	ListRecent(limit int) ([]*FunctionLog, error)
}
