// Package cmd 提供 haloctl 命令行工具的所有子命令实现。
// 本文件实现 API 客户端，封装与引擎后端的 HTTP/JSON 通信：
// 函数的 CRUD、同步调用、审计日志查询与源码编译预检。
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Client 是引擎的 API 客户端。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建 API 客户端。
// 从 viper 配置读取 api_url，未配置时使用 http://localhost:8080。
func NewClient() *Client {
	baseURL := viper.GetString("api_url")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Function 表示引擎中一个函数的完整信息。
type Function struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Source         string    `json:"source,omitempty"`
	CompiledCode   string    `json:"compiled_code,omitempty"`
	Status         string    `json:"status"`
	CronExpression string    `json:"cron_expression,omitempty"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateFunctionRequest 表示创建函数的 API 请求体。
type CreateFunctionRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Source         string   `json:"source"`
	CronExpression string   `json:"cron_expression,omitempty"`
}

// InvokeResponse 表示函数调用的响应结果。
type InvokeResponse struct {
	RequestID string          `json:"request_id"`
	Value     json.RawMessage `json:"value"`
	Logs      []string        `json:"logs"`
	TimeUsage int64           `json:"time_usage"`
}

// FunctionLog 表示一条调用审计记录。
type FunctionLog struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	FuncID    string    `json:"func_id"`
	FuncName  string    `json:"func_name"`
	Logs      []string  `json:"logs"`
	TimeUsage int64     `json:"time_usage"`
	CreatedAt time.Time `json:"created_at"`
}

// APIError 表示 API 返回的错误响应。
type APIError struct {
	Code      int    `json:"-"`
	Message   string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("API error %d: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// do 执行 HTTP 请求并处理响应。
func (c *Client) do(method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			apiErr.Code = resp.StatusCode
			return &apiErr
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

func (c *Client) CreateFunction(req *CreateFunctionRequest) (*Function, error) {
	var fn Function
	if err := c.do("POST", "/api/v1/functions", req, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

func (c *Client) ListFunctions() ([]Function, error) {
	var result struct {
		Functions []Function `json:"functions"`
	}
	if err := c.do("GET", "/api/v1/functions?limit=100", nil, &result); err != nil {
		return nil, err
	}
	return result.Functions, nil
}

func (c *Client) GetFunction(id string) (*Function, error) {
	var fn Function
	if err := c.do("GET", "/api/v1/functions/"+url.PathEscape(id), nil, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

func (c *Client) GetFunctionByName(name string) (*Function, error) {
	var fn Function
	if err := c.do("GET", "/api/v1/functions/by-name/"+url.PathEscape(name), nil, &fn); err != nil {
		return nil, err
	}
	return &fn, nil
}

func (c *Client) DeleteFunction(id string) error {
	return c.do("DELETE", "/api/v1/functions/"+url.PathEscape(id), nil, nil)
}

// InvokeFunction 按名称同步调用函数，payload 作为 ctx.body 传入。
func (c *Client) InvokeFunction(name string, payload json.RawMessage) (*InvokeResponse, error) {
	var resp InvokeResponse
	if err := c.do("POST", "/api/v1/invoke/"+url.PathEscape(name), payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListFunctionLogs(id string, limit int) ([]FunctionLog, error) {
	var result struct {
		Logs []FunctionLog `json:"logs"`
	}
	path := fmt.Sprintf("/api/v1/functions/%s/logs?limit=%d", url.PathEscape(id), limit)
	if err := c.do("GET", path, nil, &result); err != nil {
		return nil, err
	}
	return result.Logs, nil
}

func (c *Client) ListRecentLogs(limit int) ([]FunctionLog, error) {
	var result struct {
		Logs []FunctionLog `json:"logs"`
	}
	if err := c.do("GET", fmt.Sprintf("/api/v1/logs/recent?limit=%d", limit), nil, &result); err != nil {
		return nil, err
	}
	return result.Logs, nil
}

// CompileSource 请求服务端编译一段源码但不持久化。
func (c *Client) CompileSource(source string) (string, error) {
	var result struct {
		CompiledCode string `json:"compiled_code"`
	}
	if err := c.do("POST", "/api/v1/compile", map[string]string{"source": source}, &result); err != nil {
		return "", err
	}
	return result.CompiledCode, nil
}
