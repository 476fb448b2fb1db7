package shopping

import (
	"sync/atomic"
)

// Status 解析進度
type Status struct {
	QueueLength    int `json:"queue_length"`
	ProcessedCount int `json:"processed_count"`
	Total          int `json:"total"`
	Workers        int `json:"workers"`
}

// workQueue 固定長度的工作佇列，項目以索引表示，結果寫回各自的位置
type workQueue struct {
	jobs      chan int
	total     int
	workers   int
	processed int64
}

// newWorkQueue 建立並填滿佇列
func newWorkQueue(total, workers int) *workQueue {
	if workers <= 0 {
		workers = 1
	}
	if workers > total && total > 0 {
		workers = total
	}

	q := &workQueue{
		jobs:    make(chan int, total),
		total:   total,
		workers: workers,
	}
	for i := 0; i < total; i++ {
		q.jobs <- i
	}
	close(q.jobs)
	return q
}

// incrementProcessed 增加處理計數並返回目前數量
func (q *workQueue) incrementProcessed() int {
	return int(atomic.AddInt64(&q.processed, 1))
}

// status 獲取佇列狀態
func (q *workQueue) status() Status {
	return Status{
		QueueLength:    len(q.jobs),
		ProcessedCount: int(atomic.LoadInt64(&q.processed)),
		Total:          q.total,
		Workers:        q.workers,
	}
}
