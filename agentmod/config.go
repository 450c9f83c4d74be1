package agentmod

import (
	"errors"
	"fmt"
	"time"

	"github.com/botpass/botpass/agentmod/content"
	"github.com/botpass/botpass/agentmod/ratelimit"
	"github.com/botpass/botpass/agentmod/strikes"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Rules   map[ratelimit.Action]ratelimit.Rule
	Content content.Config
	// How long a throttle decision blocks an actor.
	ThrottleDuration time.Duration
	// Upper bound on each individual store call made while admitting an action. Zero disables.
	StoreTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Rules:            ratelimit.DefaultRules(),
		Content:          content.DefaultConfig(),
		ThrottleDuration: strikes.DefaultThrottleDuration,
		StoreTimeout:     2 * time.Second,
	}
}

func (c Config) Validate() error {
	if err := ratelimit.ValidateRules(c.Rules); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Content.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.ThrottleDuration <= 0 {
		return fmt.Errorf("%w: throttle duration must be positive", ErrInvalidConfig)
	}
	if c.StoreTimeout < 0 {
		return fmt.Errorf("%w: store timeout can not be negative", ErrInvalidConfig)
	}
	return nil
}
