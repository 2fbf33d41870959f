// Package domain 定义了云函数引擎的核心领域模型。
// 该包包含了函数定义、调用上下文、执行结果等核心实体，以及存储接口和请求/响应结构体。
// 这是整个应用程序的领域层，其余各层均依赖于此。
package domain

import (
	"time"

	"github.com/robfig/cron/v3"
)

// FunctionStatus 表示函数的状态类型。
type FunctionStatus string

// 函数状态常量定义
const (
	// FunctionStatusActive 表示函数处于活跃状态，可以被调用
	FunctionStatusActive FunctionStatus = "active"
	// FunctionStatusInactive 表示函数已停用，暂停服务但可恢复
	FunctionStatusInactive FunctionStatus = "inactive"
)

// CanInvoke 检查当前状态是否可以调用函数
func (s FunctionStatus) CanInvoke() bool {
	return s == FunctionStatusActive
}

// 代码大小限制常量
const (
	// MaxSourceSize 是函数源代码的最大大小（512KB）
	MaxSourceSize = 512 * 1024
)

// ValidateSourceSize 验证源代码大小是否在限制范围内
// 返回 nil 表示验证通过，否则返回 ErrSourceSizeExceeded
func ValidateSourceSize(source string) error {
	if len(source) > MaxSourceSize {
		return ErrSourceSizeExceeded
	}
	return nil
}

// ValidateCronExpression 验证 cron 表达式是否有效
// 支持标准 6 字段格式（包含秒）：秒 分 时 日 月 星期
// 空表达式是有效的（表示无定时触发）。
func ValidateCronExpression(expr string) error {
	if expr == "" {
		return nil
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return ErrInvalidCronExpression
	}
	return nil
}

// Function 表示一个云函数定义。
// 这是引擎的核心领域对象：一段存储的 TypeScript 源码及其编译产物和元数据。
type Function struct {
	// ID 是函数的唯一标识符，创建后不可变
	ID string `json:"id"`
	// Name 是函数名称，用于按名查找；本层不保证唯一（按名查找返回首个匹配）
	Name string `json:"name"`
	// Description 是函数的描述信息，可选
	Description string `json:"description,omitempty"`
	// Tags 是函数的标签列表，用于分类和筛选
	Tags []string `json:"tags,omitempty"`
	// Source 是函数的 TypeScript 源代码
	Source string `json:"source,omitempty"`
	// CompiledCode 是编译后的 JavaScript 代码，由编译器在创建/更新时生成
	CompiledCode string `json:"compiled_code,omitempty"`
	// Status 是函数的当前状态
	Status FunctionStatus `json:"status"`
	// CronExpression 是定时触发表达式（可选），如 "0 */5 * * * *"
	CronExpression string `json:"cron_expression,omitempty"`
	// Version 是函数的版本号，每次更新递增
	Version int `json:"version"`
	// CreatedAt 是函数的创建时间
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt 是函数的最后更新时间
	UpdatedAt time.Time `json:"updated_at"`
}

// FunctionContext 表示一次调用的上下文。
// 由调用方（HTTP 入口或嵌套调用）每次新建，按值语义传入引擎；
// 引擎不得在调用生命周期之外保留它。
type FunctionContext struct {
	// Query 是请求的查询参数
	Query map[string]string `json:"query,omitempty"`
	// Body 是请求体（已解析的 JSON 对象）
	Body map[string]interface{} `json:"body,omitempty"`
	// Auth 是已解析的认证信息（令牌声明）
	Auth map[string]interface{} `json:"auth,omitempty"`
	// RequestID 是本次调用的请求标识
	RequestID string `json:"request_id,omitempty"`
	// Method 是调用方式；嵌套调用未显式指定时默认为 "call"
	Method string `json:"method,omitempty"`
	// Depth 是嵌套调用深度，由嵌套调用器在函数调用函数时递增，用于递归防护
	Depth int `json:"-"`
}

// Normalize 规范化调用上下文：Method 为空时填充默认值 "call"。
// 幂等：对已规范化的上下文重复调用无副作用。
func (c *FunctionContext) Normalize() {
	if c.Method == "" {
		c.Method = "call"
	}
}

// ExecutionResult 表示一次函数执行的结构化结果。
// 每次调用由执行引擎生成一次；嵌套调用时由审计记录器在返回前
// 向 Logs 头部插入一条追踪行（仅此一次变更）。
type ExecutionResult struct {
	// Value 是函数的返回值（任意结构化数据）
	Value interface{} `json:"value"`
	// Logs 是执行期间产生的日志行，单次调用内只追加
	Logs []string `json:"logs"`
	// TimeUsage 是执行耗时（单位：毫秒）
	TimeUsage int64 `json:"time_usage"`
}

// CreateFunctionRequest 表示创建函数的请求结构体。
type CreateFunctionRequest struct {
	// Name 是函数名称，必填，长度限制为 1-64 字符
	Name string `json:"name" validate:"required,min=1,max=64"`
	// Description 是函数描述，可选
	Description string `json:"description,omitempty"`
	// Tags 是函数标签，可选
	Tags []string `json:"tags,omitempty"`
	// Source 是函数的 TypeScript 源代码，必填
	Source string `json:"source" validate:"required"`
	// CronExpression 是定时触发表达式，可选
	CronExpression string `json:"cron_expression,omitempty"`
}

// Validate 验证创建函数请求的参数是否有效。
// 如果验证失败，返回相应的错误；验证通过则返回 nil。
func (r *CreateFunctionRequest) Validate() error {
	if r.Name == "" || len(r.Name) > 64 {
		return ErrInvalidFunctionName
	}
	if r.Source == "" {
		return ErrInvalidSource
	}
	if err := ValidateSourceSize(r.Source); err != nil {
		return err
	}
	if err := ValidateCronExpression(r.CronExpression); err != nil {
		return err
	}
	return nil
}

// UpdateFunctionRequest 表示更新函数的请求结构体。
// 所有字段都是指针类型，允许部分更新（只更新非 nil 的字段）。
type UpdateFunctionRequest struct {
	// Description 是更新后的函数描述
	Description *string `json:"description,omitempty"`
	// Tags 是更新后的函数标签
	Tags *[]string `json:"tags,omitempty"`
	// Source 是更新后的 TypeScript 源代码
	Source *string `json:"source,omitempty"`
	// CronExpression 是更新后的定时触发表达式
	CronExpression *string `json:"cron_expression,omitempty"`
	// Status 是更新后的函数状态
	Status *FunctionStatus `json:"status,omitempty"`
}

// FunctionRepository 定义了函数存储的接口。
// 该接口抽象了函数定义的查找与持久化，允许不同的存储实现（数据库、内存等）。
type FunctionRepository interface {
	// Create 创建一个新的函数记录
	Create(fn *Function) error
	// GetByID 根据 ID 获取函数；不存在时返回 ErrFunctionNotFound
	GetByID(id string) (*Function, error)
	// GetByName 根据名称获取函数；不存在时返回 ErrFunctionNotFound。
	// 多个同名函数时返回首个匹配（按创建时间升序），本层不保证名称唯一。
	GetByName(name string) (*Function, error)
	// List 分页获取函数列表，返回函数列表、总数和可能的错误
	List(offset, limit int) ([]*Function, int, error)
	// Update 更新函数信息
	Update(fn *Function) error
	// Delete 根据 ID 删除函数
	Delete(id string) error
}
