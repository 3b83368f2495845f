// internal/engine/random.go
package engine

import (
	"math/rand"
	"sync"
	"time"
)

// RandomSource 自然变化步骤使用的随机源，测试时可替换为固定值
type RandomSource interface {
	Float64() float64
	Intn(n int) int
}

// lockedSource 多个会话共享同一个引擎时，随机源需要加锁
type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomSource 创建带种子的随机源；seed 为 0 时使用当前时间
func NewRandomSource(seed int64) RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}
