// Package domain 定义了云函数引擎的核心领域模型。
package domain

import (
	"errors"
	"fmt"
)

// 领域错误定义
// 这些错误用于在应用程序的不同层之间传递业务逻辑相关的错误信息。

var (
	// ========== 函数相关错误 ==========

	// ErrFunctionNotFound 表示请求的函数不存在（按名或按 ID 查找均无匹配）
	ErrFunctionNotFound = errors.New("function not found")
	// ErrInvalidFunctionName 表示函数名称无效（为空或超长）
	ErrInvalidFunctionName = errors.New("invalid function name")
	// ErrInvalidSource 表示函数源代码无效（为空）
	ErrInvalidSource = errors.New("invalid source code")
	// ErrSourceSizeExceeded 表示源代码大小超出限制
	ErrSourceSizeExceeded = errors.New("source size exceeds maximum limit")
	// ErrInvalidCronExpression 表示定时触发表达式无效
	ErrInvalidCronExpression = errors.New("invalid cron expression")

	// ========== 编译相关错误 ==========

	// ErrCompileFailed 表示源代码在语法层面无效，编译失败。
	// 仅类型错误但语法合法的源代码不会触发该错误（编译是宽容的）。
	ErrCompileFailed = errors.New("compile failed")

	// ========== 执行相关错误 ==========

	// ErrExecutionFailed 表示沙箱执行期间的任何失败（运行时异常、资源限制等）。
	// 对调用方而言这是单一的错误类别，原样向上传播。
	ErrExecutionFailed = errors.New("execution failed")
	// ErrExecutionTimeout 表示执行超出时间预算；它属于执行失败的一种
	ErrExecutionTimeout = fmt.Errorf("%w: execution timed out", ErrExecutionFailed)
	// ErrRecursionLimit 表示嵌套调用深度超过了配置的上限
	ErrRecursionLimit = errors.New("recursion depth limit exceeded")

	// ========== 存储相关错误 ==========

	// ErrStorageConnection 表示存储连接错误（如数据库连接失败）
	ErrStorageConnection = errors.New("storage connection error")
	// ErrStorageQuery 表示存储查询错误（如 SQL 查询失败）
	ErrStorageQuery = errors.New("storage query error")
	// ErrLogStoreFailed 表示审计日志持久化失败。
	// 策略：记录并继续，绝不回滚已完成的执行结果。
	ErrLogStoreFailed = errors.New("function log store failed")
	// ErrDocumentNotFound 表示文档集合中没有满足过滤条件的记录
	ErrDocumentNotFound = errors.New("document not found")

	// ========== 对象存储相关错误 ==========

	// ErrBlobNotFound 表示请求的对象不存在
	ErrBlobNotFound = errors.New("blob not found")
	// ErrInvalidBlobKey 表示对象键无效（为空或试图越出命名空间）
	ErrInvalidBlobKey = errors.New("invalid blob key")
)
