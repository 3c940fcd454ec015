package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// GeoInfo is the flat key/value description of an IP address returned by a
// lookup service. Values handed out by GeoCache are shared and must be
// treated as read-only.
type GeoInfo map[string]string

var (
	ErrInvalidIP = errors.New("invalid IP address")
	ErrNoData    = errors.New("no geolocation data")
)

// Resolver turns an IP address into GeoInfo. Implementations return an error
// rather than an empty result when nothing useful was found.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, ip string) (GeoInfo, error)
}

// ChainResolver asks each resolver in turn and returns the first non-empty answer.
type ChainResolver []Resolver

// Name lists the member resolvers in the order they are asked.
func (c ChainResolver) Name() string {
	if len(c) == 0 {
		return "none"
	}
	names := make([]string, len(c))
	for i, r := range c {
		names[i] = r.Name()
	}
	return strings.Join(names, " > ")
}

func (c ChainResolver) Resolve(ctx context.Context, ip string) (GeoInfo, error) {
	if len(c) == 0 {
		return nil, ErrNoData
	}

	var errs []error
	for _, r := range c {
		info, err := r.Resolve(ctx, ip)
		if err == nil && len(info) > 0 {
			return info, nil
		}
		if err == nil {
			err = ErrNoData
		}
		errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
		if errors.Is(err, ErrInvalidIP) || ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}
