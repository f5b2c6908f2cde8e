package protocol

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateCaptureOrderIsPermutation(t *testing.T) {
	for _, n := range []int{1, 2, 3, 8, 20, 64} {
		for seed := int64(0); seed < 20; seed++ {
			rng := rand.New(rand.NewSource(seed))
			order, err := GenerateCaptureOrder(n, rng)
			require.NoError(t, err)
			require.NoError(t, order.Validate(n), "n=%d seed=%d order=%v", n, seed, order)
		}
	}
}

func TestGenerateCaptureOrderDeterministicPerSeed(t *testing.T) {
	a, err := GenerateCaptureOrder(16, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := GenerateCaptureOrder(16, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestGenerateCaptureOrderRejectsEmpty(t *testing.T) {
	_, err := GenerateCaptureOrder(0, rand.New(rand.NewSource(1)))
	require.Error(t, err)
}

func TestCaptureOrderValidate(t *testing.T) {
	tests := []struct {
		name    string
		order   CaptureOrder
		n       int
		wantErr bool
	}{
		{name: "valid", order: CaptureOrder{2, 1, 3}, n: 3},
		{name: "single", order: CaptureOrder{1}, n: 1},
		{name: "wrong length", order: CaptureOrder{1, 2}, n: 3, wantErr: true},
		{name: "duplicate", order: CaptureOrder{1, 2, 2}, n: 3, wantErr: true},
		{name: "out of range", order: CaptureOrder{0, 1, 2}, n: 3, wantErr: true},
		{name: "too large", order: CaptureOrder{1, 2, 4}, n: 3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate(tt.n)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCaptureOrderStepOf(t *testing.T) {
	order := CaptureOrder{2, 1, 3}
	require.Equal(t, 0, order.StepOf(2))
	require.Equal(t, 1, order.StepOf(1))
	require.Equal(t, 2, order.StepOf(3))
	require.Equal(t, -1, order.StepOf(7))
}

func TestCaptureOrderCloneIsIndependent(t *testing.T) {
	order := CaptureOrder{2, 1, 3}
	clone := order.Clone()
	clone[0] = 3
	require.Equal(t, SiteID(2), order[0])
}
