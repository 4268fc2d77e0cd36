package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"lookup_engine/internal/model"
)

// JSONLSink 以每行一条 JSON 的形式追加结果，便于外部工具增量消费。
type JSONLSink struct {
	mu sync.Mutex
	f  *os.File
}

func OpenJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{f: f}, nil
}

func (s *JSONLSink) Write(_ context.Context, res model.VerificationResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.f.Write(b)
	return err
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
