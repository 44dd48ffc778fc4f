package channels

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Strategy is one named way of performing a delivery action. Strategies
// are tried in order until one succeeds.
type Strategy struct {
	Name    string
	Attempt func(ctx context.Context) error
}

// ErrNoStrategy means every strategy in the chain failed.
var ErrNoStrategy = errors.New("all delivery strategies failed")

// TryInOrder runs the strategies in sequence and returns the name of the
// first one that succeeds.
func TryInOrder(ctx context.Context, logger *zap.Logger, action string, strategies []Strategy) (string, error) {
	var lastErr error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.Attempt(ctx); err != nil {
			logger.Warn("Delivery strategy failed, trying next",
				zap.String("action", action),
				zap.String("strategy", s.Name),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		logger.Info("Delivery strategy succeeded",
			zap.String("action", action),
			zap.String("strategy", s.Name),
		)
		return s.Name, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoStrategy, action, lastErr)
	}
	return "", fmt.Errorf("%w: %s", ErrNoStrategy, action)
}
