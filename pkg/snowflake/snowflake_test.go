package snowflake

import (
	"sync"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	node, err := NewNode(1)
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}

	seen := make(map[ID]bool)
	for i := 0; i < 10000; i++ {
		id := node.Generate()
		if seen[id] {
			t.Fatalf("重复 ID: %d", id)
		}
		seen[id] = true
	}
}

func TestGenerateMonotonic(t *testing.T) {
	node, _ := NewNode(1)

	// 消息排序依赖 ID 数值序与生成时间序一致
	var last ID
	for i := 0; i < 10000; i++ {
		id := node.Generate()
		if id <= last {
			t.Fatalf("ID 不单调: %d <= %d", id, last)
		}
		last = id
	}
}

func TestGenerateConcurrent(t *testing.T) {
	node, _ := NewNode(1)

	const goroutines = 10
	const perGoroutine = 1000

	var mu sync.Mutex
	seen := make(map[ID]bool)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]ID, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				ids = append(ids, node.Generate())
			}
			mu.Lock()
			for _, id := range ids {
				if seen[id] {
					t.Errorf("并发生成出现重复 ID: %d", id)
				}
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != goroutines*perGoroutine {
		t.Errorf("期望 %d 个唯一 ID, 实际 = %d", goroutines*perGoroutine, len(seen))
	}
}

func TestInvalidNodeIDFallsBack(t *testing.T) {
	node, err := NewNode(-5)
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}

	// 非法节点号回退到默认值，仍可正常生成
	if node.Generate() <= 0 {
		t.Error("期望生成正数 ID")
	}
}

func TestIDString(t *testing.T) {
	id := ID(123456789)
	if id.String() != "123456789" {
		t.Errorf("期望 '123456789', 实际 = '%s'", id.String())
	}
	if id.Int64() != 123456789 {
		t.Errorf("期望 123456789, 实际 = %d", id.Int64())
	}
}
