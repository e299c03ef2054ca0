package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriority_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b Priority
		want int
	}{
		{"equal", Priority{1, 2, false}, Priority{1, 2, false}, 0},
		{"class wins", Priority{0, 9, true}, Priority{1, 0, false}, -1},
		{"tier breaks class tie", Priority{1, 0, true}, Priority{1, 1, false}, -1},
		{"dirty before clean", Priority{1, 1, false}, Priority{1, 1, true}, -1},
		{"reversed", Priority{2, 0, false}, Priority{1, 0, false}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
			assert.Equal(t, tt.want < 0, tt.a.Less(tt.b))
		})
	}
}

func TestPriority_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Priority{Class: 2, Tier: 1, Clean: true})
	require.NoError(t, err)
	assert.JSONEq(t, `[2, 1, true]`, string(data))
}

func TestPriority_UnmarshalJSON(t *testing.T) {
	var p Priority
	require.NoError(t, json.Unmarshal([]byte(`[2, 1, true]`), &p))
	assert.Equal(t, Priority{Class: 2, Tier: 1, Clean: true}, p)

	// Older snapshots wrote the clean flag as 0/1.
	require.NoError(t, json.Unmarshal([]byte(`[3, 0, 1]`), &p))
	assert.Equal(t, Priority{Class: 3, Tier: 0, Clean: true}, p)

	require.NoError(t, json.Unmarshal([]byte(`[3, 0, 0]`), &p))
	assert.False(t, p.Clean)
}

func TestPriority_UnmarshalJSON_Errors(t *testing.T) {
	var p Priority
	assert.Error(t, json.Unmarshal([]byte(`{"class": 1}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`[1, 2]`), &p))
	assert.Error(t, json.Unmarshal([]byte(`[1, 2, "maybe"]`), &p))
}
