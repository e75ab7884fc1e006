package tryvial

import (
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
)

type (
	// configFile is the top-level JSON structure.
	configFile struct {
		Policies map[string]Config `json:"policies"`
	}

	// Config is the consolidated configuration of one policy. Export it to
	// embed in your own app config structs for JSON or YAML unmarshaling,
	// then call [BuildOptions] or pass it to [WithConfig]. Nil fields take
	// their defaults.
	Config struct {
		// Retry enables retrying. Optional, default false.
		Retry *bool `json:"retry,omitempty" yaml:"retry,omitempty"`
		// Retries is the number of extra attempts after the first.
		// Optional, default 2. Only used when Retry is true.
		Retries *int `json:"retries,omitempty" yaml:"retries,omitempty"`
		// RetryDelay is the base wait between retries.
		// Optional, default "0s". Parsed via time.ParseDuration.
		RetryDelay *string `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
		// Jitter is the magnitude of the random wait added to RetryDelay.
		// Optional, default "0s". Parsed via time.ParseDuration.
		Jitter *string `json:"jitter,omitempty" yaml:"jitter,omitempty"`
		// Backoff names the delay strategy. Optional, default "jitter".
		// One of: "jitter", "constant", "linear", "exponential",
		// "exponential_jitter". All but "jitter" use RetryDelay as their
		// base and ignore Jitter.
		Backoff *string `json:"backoff,omitempty" yaml:"backoff,omitempty"`
		// MaxDelay caps every retry delay. Optional.
		// Parsed via time.ParseDuration. Example: "5s".
		MaxDelay *string `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
		// Timeout enables racing each attempt against TimeoutAfter.
		// Optional, default false.
		Timeout *bool `json:"timeout,omitempty" yaml:"timeout,omitempty"`
		// TimeoutAfter is the per-attempt timeout. Optional, default "10s".
		// Parsed via time.ParseDuration; must be positive when set.
		TimeoutAfter *string `json:"timeout_after,omitempty" yaml:"timeout_after,omitempty"`
	}
)

// LoadConfig reads a JSON configuration file and stores the policy
// configurations in a [Registry]. Policies are not created until
// [GetPolicy] is called, allowing the caller to provide the type parameter,
// hooks and fallbacks in code.
//
// Every policy is validated eagerly so errors surface at load time.
func LoadConfig(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tryvial: read config: %w", err)
	}

	var cfg configFile
	if err = json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("tryvial: parse config: %w", err)
	}

	for name, pc := range cfg.Policies {
		if _, buildErr := BuildOptions(&pc); buildErr != nil {
			return nil, fmt.Errorf("tryvial: policy %q: %w", name, buildErr)
		}
	}

	reg := NewRegistry()
	reg.mu.Lock()
	reg.configs = cfg.Policies
	reg.mu.Unlock()

	return reg, nil
}

// BuildOptions converts a [Config] into a slice of functional option values
// suitable for [NewPolicy]. Use this when you embed [Config] in your own
// config struct and want the validation error instead of a panic.
func BuildOptions(pc *Config) ([]any, error) {
	var opts []any

	retryDelay, err := parseOptionalDuration(pc.RetryDelay, "retry_delay")
	if err != nil {
		return nil, err
	}

	jitter, err := parseOptionalDuration(pc.Jitter, "jitter")
	if err != nil {
		return nil, err
	}

	maxDelay, err := parseOptionalDuration(pc.MaxDelay, "max_delay")
	if err != nil {
		return nil, err
	}

	timeoutAfter, err := parseOptionalDuration(pc.TimeoutAfter, "timeout_after")
	if err != nil {
		return nil, err
	}

	if pc.TimeoutAfter != nil && timeoutAfter == 0 {
		return nil, fmt.Errorf("timeout_after: must be > 0, got %s", *pc.TimeoutAfter)
	}

	if pc.Retries != nil && *pc.Retries < 0 {
		return nil, fmt.Errorf("retries: must be >= 0, got %d", *pc.Retries)
	}

	strategy, err := parseBackoffStrategy(pc.Backoff, retryDelay)
	if err != nil {
		return nil, err
	}

	if pc.Retry != nil && *pc.Retry {
		if pc.Retries != nil {
			opts = append(opts, WithRetry(*pc.Retries))
		} else {
			opts = append(opts, WithRetryDefault())
		}

		opts = append(opts,
			WithRetryDelay(retryDelay),
			WithJitter(jitter),
		)

		if strategy != nil {
			opts = append(opts, WithBackoff(strategy))
		}

		if maxDelay > 0 {
			opts = append(opts, WithMaxDelay(maxDelay))
		}
	}

	if pc.Timeout != nil && *pc.Timeout {
		opts = append(opts, WithTimeout(timeoutAfter))
	}

	return opts, nil
}

func parseOptionalDuration(s *string, field string) (time.Duration, error) {
	if s == nil {
		return 0, nil
	}

	d, err := time.ParseDuration(*s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("%s: must be >= 0, got %s", field, d)
	}

	return d, nil
}

// parseBackoffStrategy maps a backoff name to a BackoffStrategy. A nil name
// or "jitter" returns nil, leaving the default formula in place.
//
//nolint:ireturn // returns interface by design for strategy pattern
func parseBackoffStrategy(name *string, base time.Duration) (BackoffStrategy, error) {
	if name == nil {
		return nil, nil
	}

	switch *name {
	case "jitter":
		return nil, nil
	case "constant":
		return ConstantBackoff(base), nil
	case "exponential":
		return ExponentialBackoff(base), nil
	case "linear":
		return LinearBackoff(base), nil
	case "exponential_jitter":
		return ExponentialJitterBackoff(base), nil
	default:
		return nil, fmt.Errorf("backoff: unknown backoff strategy: %q", *name)
	}
}
