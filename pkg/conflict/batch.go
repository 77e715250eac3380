package conflict

import (
	"context"
	"sync"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// BatchResult 单个候选的检测结果
type BatchResult struct {
	Index     int               `json:"index"`
	Candidate *model.Assignment `json:"candidate"`
	Conflicts []*model.Conflict `json:"conflicts"`
	Blocking  bool              `json:"blocking"`
}

// BatchDetector 并行批量检测
//
// 检测是纯函数, 多个 worker 并发读取同一份快照是安全的,
// 但调用方在批量检测期间不得再修改快照。
type BatchDetector struct {
	workers  int
	detector *Detector
}

// NewBatchDetector 创建批量检测器
func NewBatchDetector(workers int, detector *Detector) *BatchDetector {
	if workers <= 0 {
		workers = 4
	}
	return &BatchDetector{
		workers:  workers,
		detector: detector,
	}
}

// DetectBatch 并行检测一批候选, 结果按输入下标对齐
//
// 上下文取消时停止派发剩余任务, 已完成的结果照常返回,
// 未执行的下标保持零值。
func (b *BatchDetector) DetectBatch(ctx context.Context, snap *Snapshot, candidates []*model.Assignment) []BatchResult {
	if len(candidates) == 0 {
		return nil
	}

	jobChan := make(chan int, len(candidates))
	resultChan := make(chan BatchResult, len(candidates))

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobChan {
				select {
				case <-ctx.Done():
					return
				default:
					conflicts := b.detector.Detect(snap, candidates[idx])
					resultChan <- BatchResult{
						Index:     idx,
						Candidate: candidates[idx],
						Conflicts: conflicts,
						Blocking:  HasBlocking(conflicts),
					}
				}
			}
		}()
	}

	go func() {
		for i := range candidates {
			jobChan <- i
		}
		close(jobChan)
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]BatchResult, len(candidates))
	for r := range resultChan {
		results[r.Index] = r
	}
	return results
}
