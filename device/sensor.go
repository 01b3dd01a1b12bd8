package device

import (
	"context"
	"math/rand/v2"
	"sync"
)

// SimulatedSensor produces a random walk for the LDR and occasional PIR
// toggles. It stands in for real hardware when running the agent on a host.
type SimulatedSensor struct {
	mu  sync.Mutex
	rng *rand.Rand
	ldr uint16
	pir bool
}

// NewSimulatedSensor creates a deterministic simulated sensor for seed.
func NewSimulatedSensor(seed uint64) *SimulatedSensor {
	return &SimulatedSensor{
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		ldr: 2048,
	}
}

// Read returns the next simulated sample. The LDR stays within the 12-bit
// ADC range.
func (s *SimulatedSensor) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	step := s.rng.IntN(41) - 20
	if s.rng.IntN(20) == 0 {
		step *= 8
	}
	s.ldr = uint16(min(max(int(s.ldr)+step, 0), 4095))
	if s.rng.IntN(25) == 0 {
		s.pir = !s.pir
	}
	return Reading{LDR: s.ldr, PIR: s.pir}, nil
}
