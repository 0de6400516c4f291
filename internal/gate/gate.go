package gate

import "go.uber.org/zap"

// Controller abstracts the physical barrier actuator. Open is fire-and-forget:
// the state engine never waits for mechanical confirmation and never re-reads
// actuator state, so implementations swallow transport failures.
type Controller interface {
	Open(zone string)
}

// Simulator is the no-hardware variant, it only logs the open signal.
type Simulator struct {
	logger *zap.Logger
}

// NewSimulator returns a logging stand-in for the barrier.
func NewSimulator(logger *zap.Logger) *Simulator {
	return &Simulator{logger: logger}
}

// Open logs the signal.
func (s *Simulator) Open(zone string) {
	s.logger.Info("barrier open signal (simulated)", zap.String("zone", zone))
}
