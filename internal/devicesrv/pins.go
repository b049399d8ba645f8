package devicesrv

import (
	"fmt"
	"sync"
)

// Pins is the GPIO surface the service drives.
type Pins interface {
	SetLED(on bool) error
	LED() bool
	// SetDutyCycle sets the motor PWM duty cycle in percent.
	SetDutyCycle(percent int) error
	DutyCycle() int
}

// MemoryPins simulates the LED pin and the motor PWM in memory.
type MemoryPins struct {
	mu   sync.Mutex
	led  bool
	duty int
}

// NewMemoryPins returns pins with the LED off and the motor stopped.
func NewMemoryPins() *MemoryPins {
	return &MemoryPins{}
}

func (p *MemoryPins) SetLED(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.led = on
	return nil
}

func (p *MemoryPins) LED() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.led
}

func (p *MemoryPins) SetDutyCycle(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("duty cycle %d outside 0..100", percent)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duty = percent
	return nil
}

func (p *MemoryPins) DutyCycle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}
