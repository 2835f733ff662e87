package report

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"rsi-options-engine/internal/model"
)

// JSONLSink writes one JSON trade record per line. It is safe for
// concurrent use and implements model.TradeSink.
type JSONLSink struct {
	mu sync.Mutex
	w  *bufio.Writer
	c  io.Closer
}

// NewJSONLSink writes to w. Close flushes and, if w is an io.Closer,
// closes it.
func NewJSONLSink(w io.Writer) *JSONLSink {
	s := &JSONLSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// CreateJSONL truncates or creates path.
func CreateJSONL(path string) (*JSONLSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	return NewJSONLSink(f), nil
}

func (s *JSONLSink) Record(_ context.Context, rec model.TradeRecord) error {
	b, err := sonic.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "encode trade %s", rec.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(b); err != nil {
		return errors.Wrap(err, "write trade")
	}
	return s.w.WriteByte('\n')
}

// Flush pushes buffered lines to the underlying writer.
func (s *JSONLSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

func (s *JSONLSink) Close() error {
	if err := s.Flush(); err != nil {
		return errors.Wrap(err, "flush trades")
	}
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// ReadJSONL decodes a trade stream written by JSONLSink.
func ReadJSONL(r io.Reader) ([]model.TradeRecord, error) {
	var out []model.TradeRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec model.TradeRecord
		if err := sonic.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(sc.Err(), "read trades")
}
