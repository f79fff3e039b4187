package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolCountItems(t *testing.T) {
	tests := []struct {
		tool Tool
		data string
		want int
	}{
		{ToolComparison, `{"u1":{"a":"good"},"u2":{"b":"bad","c":"maybe"}}`, 2},
		{ToolABTest, `{"u1":"rebuild_01","u2":null,"u3":"rebuild_02"}`, 2},
		{ToolMOS, `{"u1:GT":5,"u1:rebuild_01":null}`, 1},
		{ToolMOS, `[1,2,3]`, 0},
		{Tool("other"), `{"a":1}`, 0},
		{ToolComparison, `not json`, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.tool.CountItems([]byte(tt.data)), "%s %s", tt.tool, tt.data)
	}
}

func TestToolValid(t *testing.T) {
	for _, tool := range Tools {
		assert.True(t, tool.Valid())
	}
	assert.False(t, Tool("ranking").Valid())
}
