// Package store 提供缓存与限流组件共享的条目存储基础设施：
// 后台清扫器（Janitor）和内存估算工具。
package store

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SweepFunc 清扫回调，扫描全部条目并移除逻辑上已过期/已空的记录。
// 返回本次清扫移除的条目数量。
type SweepFunc func(now time.Time) int

// Janitor 后台清扫器，每个有状态组件实例持有一个。
// 支持两种触发路径：周期性的后台协程（Start 启动）和惰性的前台
// 检查（MaybeSweep）。两条路径共享同一个清扫函数，行为完全一致，
// 因此即使后台协程未启动，组件依然能正确收敛内存。
type Janitor struct {
	interval time.Duration
	sweep    SweepFunc
	log      *logrus.Entry

	// 生命周期状态，Start/Stop 需要幂等
	lifeMu  sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	// 惰性清扫状态
	mu        sync.Mutex
	lastSweep time.Time
}

// NewJanitor 创建清扫器。interval 必须为正值，由所属组件在构造时校验。
func NewJanitor(interval time.Duration, sweep SweepFunc, log *logrus.Entry) *Janitor {
	return &Janitor{
		interval:  interval,
		sweep:     sweep,
		log:       log,
		lastSweep: time.Now(),
	}
}

// Start 启动后台清扫协程。重复调用是安全的空操作。
func (j *Janitor) Start() {
	j.lifeMu.Lock()
	defer j.lifeMu.Unlock()

	if j.running {
		return
	}

	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	j.running = true

	go j.run(j.stop, j.done)
	j.log.Debug("后台清扫器已启动")
}

// Stop 停止后台清扫协程并等待其退出，保证不会有清扫与后续的
// 状态清理并发执行。重复调用是安全的空操作。
func (j *Janitor) Stop() {
	j.lifeMu.Lock()
	defer j.lifeMu.Unlock()

	if !j.running {
		return
	}

	close(j.stop)
	<-j.done
	j.running = false
	j.log.Debug("后台清扫器已停止")
}

// IsRunning 返回后台清扫协程是否在运行。
func (j *Janitor) IsRunning() bool {
	j.lifeMu.Lock()
	defer j.lifeMu.Unlock()
	return j.running
}

// run 周期清扫循环
func (j *Janitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			j.runSweep(now)
		case <-stop:
			return
		}
	}
}

// MaybeSweep 惰性清扫检查：若距离上次清扫已超过清扫间隔，
// 则在当前调用方协程内执行一次清扫。前台操作在进入临界区前调用。
func (j *Janitor) MaybeSweep(now time.Time) {
	j.mu.Lock()
	due := now.Sub(j.lastSweep) > j.interval
	if due {
		// 先推进时间戳，避免并发调用方重复触发同一轮清扫
		j.lastSweep = now
	}
	j.mu.Unlock()

	if due {
		removed := j.sweep(now)
		if removed > 0 {
			j.log.Debugf("惰性清扫完成，移除 %d 个条目", removed)
		}
	}
}

// LastSweep 返回最近一次清扫的时间。
func (j *Janitor) LastSweep() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSweep
}

// runSweep 执行一次完整清扫并更新时间戳
func (j *Janitor) runSweep(now time.Time) {
	removed := j.sweep(now)

	j.mu.Lock()
	j.lastSweep = now
	j.mu.Unlock()

	if removed > 0 {
		j.log.Debugf("周期清扫完成，移除 %d 个条目", removed)
	}
}
