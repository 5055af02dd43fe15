package sensor

import (
	"context"
	"math/rand/v2"
	"sync"
)

// Simulated produces temperatures in [22.5, 32.4] and humidities in
// [50.0, 79.9] with a 0.1 resolution.
type Simulated struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func NewSimulated(seed uint64) *Simulated {
	return &Simulated{rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *Simulated) Read(ctx context.Context) (float32, float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	temperature := 22.5 + float32(s.rand.Uint32()%100)/10
	humidity := 50 + float32(s.rand.Uint32()%300)/10
	return temperature, humidity, nil
}
