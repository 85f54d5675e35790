package ioc

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Disposable represents a component that requires cleanup.
// Components implementing this interface will have Dispose called
// when the resolver is closed.
//
// Example:
//
//	type DatabaseConnection struct {}
//	func (d *DatabaseConnection) Dispose() error {
//	    return d.connection.Close()
//	}
type Disposable interface {
	Dispose() error
}

// Initializable represents a component that requires initialization.
// Components implementing this interface will have Initialize called
// after being constructed and before they are handed to anyone.
//
// Example:
//
//	type Service struct {}
//	func (s *Service) Initialize() error {
//	    return s.setup()
//	}
type Initializable interface {
	Initialize() error
}

func initialize(instances []any) error {
	for _, instance := range instances {
		if initializable, ok := instance.(Initializable); ok {
			if err := initializable.Initialize(); err != nil {
				return fmt.Errorf("initialize %T: %w", instance, err)
			}
		}
	}
	return nil
}

// Close disposes every instance the resolver constructed, in reverse
// construction order (dependents before their dependencies). Prebound
// instances belong to the caller and are left alone.
//
// After Close, resolution fails with ErrClosed. Closing twice is a no-op.
//
// Example:
//
//	resolver := ioc.New(ioc.WithSource(catalog))
//	defer resolver.Close()
func (r *Resolver) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	r.mu.Lock()
	created := r.created
	r.created = nil
	r.mu.Unlock()

	var errs []error
	for i := len(created) - 1; i >= 0; i-- {
		instance := created[i]
		if disposable, ok := instance.(Disposable); ok {
			if err := disposable.Dispose(); err != nil {
				errs = append(errs, fmt.Errorf("dispose %T: %w", instance, err))
			}
		}
	}

	r.logger.Debug("resolver closed", zap.Int("instances", len(created)), zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}
