package sink

import (
	"context"

	"lookup_engine/internal/model"
	"lookup_engine/internal/store/sqlite"
)

// Sink 消费终态结果。结果按完成顺序到达，不保证与输入同序。
type Sink interface {
	Write(ctx context.Context, res model.VerificationResult) error
}

type StoreSink struct {
	store *sqlite.Store
}

func NewStoreSink(store *sqlite.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Write(ctx context.Context, res model.VerificationResult) error {
	return s.store.InsertResult(ctx, res)
}

// Multi 依次写入每个 sink，返回第一个错误但不中断后续写入。
type Multi []Sink

func (m Multi) Write(ctx context.Context, res model.VerificationResult) error {
	var first error
	for _, s := range m {
		if err := s.Write(ctx, res); err != nil && first == nil {
			first = err
		}
	}
	return first
}
