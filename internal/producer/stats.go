package producer

import "time"

// Stats is a point-in-time snapshot of a producer's counters.
type Stats struct {
	Name       string
	Produced   uint64
	ReadErrors uint64
	Dropped    uint64
	QueueLen   int
	LastReadAt time.Time // zero before the first reading
}

// Stats returns the producer's current counters.
func (p *Producer[T]) Stats() Stats {
	s := Stats{
		Name:       p.name,
		Produced:   p.produced.Load(),
		ReadErrors: p.readErrors.Load(),
		Dropped:    p.out.Dropped(),
		QueueLen:   p.out.Len(),
	}
	if ns := p.lastRead.Load(); ns != 0 {
		s.LastReadAt = time.Unix(0, ns)
	}
	return s
}
