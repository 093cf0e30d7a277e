package events

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs all bus traffic at debug level.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	if logger == nil {
		logger = nopLogger{}
	}
	return &LoggingMiddleware{logger: logger}
}

// Before logs message receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	m.logger.Debug("bus_message", "category", message.Category(), "type", GetMessageType(message))
	return message, nil
}

// After logs message completion. The error passes through unchanged.
func (m *LoggingMiddleware) After(ctx context.Context, message Message, err error) error {
	if err != nil {
		m.logger.Warn("bus_message_failed", "type", GetMessageType(message), "error", err.Error())
	} else {
		m.logger.Debug("bus_message_completed", "type", GetMessageType(message))
	}
	return err
}

// =============================================================================
// CIRCUIT BREAKER MIDDLEWARE
// =============================================================================

// CircuitState is the state of one message type's breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

type circuit struct {
	failures    int
	lastFailure time.Time
	state       CircuitState
}

// CircuitBreakerMiddleware stops delivering a message type after repeated
// handler failures:
//   - opens after failureThreshold consecutive failures (0 never opens)
//   - drops messages while open
//   - lets one message through after resetTimeout (half-open)
//   - closes again on success
type CircuitBreakerMiddleware struct {
	failureThreshold int
	resetTimeout     time.Duration
	excludedTypes    map[string]struct{}
	states           map[string]*circuit
	logger           Logger
	now              func() time.Time
	mu               sync.Mutex
}

// NewCircuitBreakerMiddleware creates a new CircuitBreakerMiddleware.
func NewCircuitBreakerMiddleware(failureThreshold int, resetTimeout time.Duration, excludedTypes []string, logger Logger) *CircuitBreakerMiddleware {
	if logger == nil {
		logger = nopLogger{}
	}
	excluded := make(map[string]struct{}, len(excludedTypes))
	for _, t := range excludedTypes {
		excluded[t] = struct{}{}
	}
	return &CircuitBreakerMiddleware{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		excludedTypes:    excluded,
		states:           make(map[string]*circuit),
		logger:           logger,
		now:              time.Now,
	}
}

func (m *CircuitBreakerMiddleware) getState(msgType string) *circuit {
	s, ok := m.states[msgType]
	if !ok {
		s = &circuit{state: CircuitClosed}
		m.states[msgType] = s
	}
	return s
}

// Before drops the message while its circuit is open.
func (m *CircuitBreakerMiddleware) Before(ctx context.Context, message Message) (Message, error) {
	msgType := GetMessageType(message)
	if _, excluded := m.excludedTypes[msgType]; excluded {
		return message, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getState(msgType)
	if s.state == CircuitOpen {
		if m.now().Sub(s.lastFailure) >= m.resetTimeout {
			s.state = CircuitHalfOpen
			m.logger.Info("circuit_half_open", "type", msgType)
		} else {
			m.logger.Warn("circuit_open_blocking", "type", msgType)
			return nil, nil
		}
	}
	return message, nil
}

// After records the outcome. The error passes through unchanged.
func (m *CircuitBreakerMiddleware) After(ctx context.Context, message Message, err error) error {
	msgType := GetMessageType(message)
	if _, excluded := m.excludedTypes[msgType]; excluded {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.getState(msgType)
	if err != nil {
		s.failures++
		s.lastFailure = m.now()
		if s.state == CircuitHalfOpen {
			s.state = CircuitOpen
			m.logger.Warn("circuit_reopened", "type", msgType)
		} else if m.failureThreshold > 0 && s.failures >= m.failureThreshold {
			s.state = CircuitOpen
			m.logger.Warn("circuit_opened", "type", msgType, "failures", s.failures)
		}
		return err
	}

	if s.state == CircuitHalfOpen {
		m.logger.Info("circuit_closed", "type", msgType)
	}
	s.state = CircuitClosed
	s.failures = 0
	return err
}

// GetStates returns the current state per message type.
func (m *CircuitBreakerMiddleware) GetStates() map[string]CircuitState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]CircuitState, len(m.states))
	for k, v := range m.states {
		out[k] = v.state
	}
	return out
}

// Reset clears one message type, or all when msgType is empty.
func (m *CircuitBreakerMiddleware) Reset(msgType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msgType != "" {
		delete(m.states, msgType)
		return
	}
	m.states = make(map[string]*circuit)
}

var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*CircuitBreakerMiddleware)(nil)
)
