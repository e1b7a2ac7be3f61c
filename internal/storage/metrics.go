package storage

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"tilecache/internal/tile"
)

const (
	resultHit     = "hit"
	resultMiss    = "miss"
	resultOK      = "ok"
	resultFailure = "failure"
)

// InstrumentedStorage counts the operations of another backend.
type InstrumentedStorage struct {
	next Backend
	ops  *prometheus.CounterVec
	name string
}

// Instrument wraps next with counters registered on reg. Several backends may
// share the counter; they are told apart by the backend label.
func Instrument(next Backend, name string, reg prometheus.Registerer) (*InstrumentedStorage, error) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tilecache",
		Subsystem: "storage",
		Name:      "operations_total",
		Help:      "Storage operations by backend, operation and result.",
	}, []string{"backend", "op", "result"})

	if err := reg.Register(ops); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		ops = existing
	}
	return &InstrumentedStorage{next: next, ops: ops, name: name}, nil
}

func (s *InstrumentedStorage) observe(op string, ok bool, success, failure string) {
	result := failure
	if ok {
		result = success
	}
	s.ops.WithLabelValues(s.name, op, result).Inc()
}

func (s *InstrumentedStorage) Get(t tile.Coordinate) Handle {
	h := s.next.Get(t)
	s.observe("get", h.Exists(), resultHit, resultMiss)
	return h
}

func (s *InstrumentedStorage) GetMeta(t tile.Coordinate) ([]byte, bool) {
	buf, ok := s.next.GetMeta(t)
	s.observe("get_meta", ok, resultHit, resultMiss)
	return buf, ok
}

func (s *InstrumentedStorage) PutMeta(t tile.Coordinate, buf []byte) bool {
	ok := s.next.PutMeta(t, buf)
	s.observe("put_meta", ok, resultOK, resultFailure)
	return ok
}

func (s *InstrumentedStorage) Expire(t tile.Coordinate) bool {
	ok := s.next.Expire(t)
	s.observe("expire", ok, resultOK, resultFailure)
	return ok
}

func (s *InstrumentedStorage) Close() error {
	return s.next.Close()
}
