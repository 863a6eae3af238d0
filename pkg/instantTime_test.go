package scanner

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstantTimes(t *testing.T) {
	tests := []struct {
		name  string
		ticks []uint64
		want  []InstantTime
	}{
		{"no starts", nil, nil},
		{"single start only sets the origin", []uint64{1000}, nil},
		{
			"regular starts",
			[]uint64{1000, 1010, 1030},
			[]InstantTime{{Time: 80, Tdiff: 80}, {Time: 240, Tdiff: 160}},
		},
		{
			"start before the origin",
			[]uint64{1000, 990, 1005},
			[]InstantTime{{Time: -80, Tdiff: -80}, {Time: 40, Tdiff: 120}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InstantTimes(tt.ticks, 8))
		})
	}
}

func TestWriteInstantTimes(t *testing.T) {
	buffer := bytes.Buffer{}
	require.NoError(t, WriteInstantTimes(&buffer, InstantTimes([]uint64{5, 6, 131}, 4)))
	assert.Equal(t, "# time (ns)\ttdiff (ns)\n4\t4\n504\t500\n", buffer.String())
}
