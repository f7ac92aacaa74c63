// Package mock provides test doubles for medic interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/medic"
)

// Interface compliance checks.
var (
	_ medic.Provider    = (*Provider)(nil)
	_ medic.VisionModel = (*VisionModel)(nil)
)

// Provider is a test double for medic.Provider.
// Set StreamFn before calling Stream.
type Provider struct {
	StreamFn func(ctx context.Context, req medic.Request) (medic.Stream, error)
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(ctx context.Context, req medic.Request) (medic.Stream, error) {
	return p.StreamFn(ctx, req)
}

// VisionModel is a test double for medic.VisionModel.
// Set DescribeFn before calling Describe.
type VisionModel struct {
	DescribeFn func(ctx context.Context, req medic.VisionRequest) (string, error)
}

// Describe delegates to DescribeFn.
func (v *VisionModel) Describe(ctx context.Context, req medic.VisionRequest) (string, error) {
	return v.DescribeFn(ctx, req)
}
