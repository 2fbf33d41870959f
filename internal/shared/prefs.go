// Package shared 提供跨调用共享的进程级偏好存储。
// 这是引擎中唯一一块被所有并发调用共享的可变状态：一个进程生命周期内
// 常驻的字符串键到任意值的映射，用于函数之间的跨调用协调。
// 它没有淘汰、没有 TTL、也不跨进程重启持久化；复合的读-改-写序列
// 不提供原子性保证，由函数代码自行负责。
package shared

import "sync"

// Preferences 是进程级共享偏好存储。
// 并发安全：单次 Get/Set/Delete 是原子的（last-write-wins）。
// 整个进程只应构造一个实例，在启动时创建并注入每次能力包构建，
// 绝不作为包级全局状态被隐式访问。
type Preferences struct {
	m sync.Map
}

// NewPreferences 创建一个空的共享偏好存储。
func NewPreferences() *Preferences {
	return &Preferences{}
}

// Get 读取键对应的值，第二个返回值表示键是否存在。
func (p *Preferences) Get(key string) (interface{}, bool) {
	return p.m.Load(key)
}

// Set 写入键值对，覆盖已有值。
func (p *Preferences) Set(key string, value interface{}) {
	p.m.Store(key, value)
}

// Delete 删除键；键不存在时为空操作。
func (p *Preferences) Delete(key string) {
	p.m.Delete(key)
}

// Has 判断键是否存在。
func (p *Preferences) Has(key string) bool {
	_, ok := p.m.Load(key)
	return ok
}

// Keys 返回当前所有键的快照。
// 与并发写同时进行时，快照不保证是某一时刻的一致视图。
func (p *Preferences) Keys() []string {
	var keys []string
	p.m.Range(func(k, _ interface{}) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys
}

// Len 返回当前键的数量（近似值，见 Keys 的说明）。
// 该存储无大小上限，是已知的资源增长风险点；Len 用于指标暴露。
func (p *Preferences) Len() int {
	n := 0
	p.m.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
