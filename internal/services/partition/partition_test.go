package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/txlanes/internal/domain"
)

func TestNew_InvalidLanes(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := New(n)
		assert.ErrorIs(t, err, ErrInvalidLanes)
	}
}

func TestPartitioner_Lane(t *testing.T) {
	tests := []struct {
		name   string
		lanes  int
		client domain.ClientID
		want   int
	}{
		{name: "single lane", lanes: 1, client: 42, want: 0},
		{name: "client below lane count", lanes: 8, client: 3, want: 3},
		{name: "client wraps", lanes: 8, client: 11, want: 3},
		{name: "max client id", lanes: 7, client: 65535, want: 65535 % 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.lanes)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Lane(tt.client))
			assert.Equal(t, tt.lanes, p.Lanes())
		})
	}
}

func TestPartitioner_Deterministic(t *testing.T) {
	p, err := New(5)
	require.NoError(t, err)

	for client := domain.ClientID(0); client < 1000; client++ {
		lane := p.Lane(client)
		require.GreaterOrEqual(t, lane, 0)
		require.Less(t, lane, p.Lanes())
		require.Equal(t, lane, p.Lane(client), "client %d moved lanes", client)
	}
}
