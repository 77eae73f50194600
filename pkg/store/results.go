package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	prime "github.com/memes/prime"
)

const (
	// The key under which the worker names of the last run are recorded.
	WorkersKey = "workers"
	// Prefix of the keys that hold each worker's result.
	ResultKeyPrefix = "result:"
)

// No result has been stored for the worker.
var ErrNoResult = errors.New("no result stored")

// Record the names of the workers that took part in a run.
func SaveWorkers(ctx context.Context, s Store, names []string) error {
	if err := s.SetValue(ctx, WorkersKey, strings.Join(names, ",")); err != nil {
		return fmt.Errorf("failed to store worker names: %w", err)
	}
	return nil
}

// Returns the names of the workers recorded by SaveWorkers, if any.
func LoadWorkers(ctx context.Context, s Store) ([]string, error) {
	value, err := s.GetValue(ctx, WorkersKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load worker names: %w", err)
	}
	if value == "" {
		return []string{}, nil
	}
	return strings.Split(value, ","), nil
}

// Store the result of a worker's run under its name.
func SaveResult(ctx context.Context, s Store, result *prime.Result) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result for %s: %w", result.Name, err)
	}
	if err := s.SetValue(ctx, ResultKeyPrefix+result.Name, string(encoded)); err != nil {
		return fmt.Errorf("failed to store result for %s: %w", result.Name, err)
	}
	return nil
}

// Returns the result stored for the named worker, or an error wrapping
// ErrNoResult if there is none.
func LoadResult(ctx context.Context, s Store, name string) (*prime.Result, error) {
	value, err := s.GetValue(ctx, ResultKeyPrefix+name)
	if err != nil {
		return nil, fmt.Errorf("failed to load result for %s: %w", name, err)
	}
	if value == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrNoResult)
	}
	var result prime.Result
	if err := json.Unmarshal([]byte(value), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result for %s: %w", name, err)
	}
	return &result, nil
}
