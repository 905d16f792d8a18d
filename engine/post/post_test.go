package post

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
	})
	assert.Equal(t, 1, Len())
	Tick()
	assert.Equal(t, 1, a)
	assert.Equal(t, 0, Len())
}

func TestPostDuringTick(t *testing.T) {
	var order []int
	Post(func() {
		order = append(order, 1)
		Post(func() {
			order = append(order, 3)
		})
	})
	Post(func() {
		order = append(order, 2)
		panic("ignored")
	})
	Tick()
	assert.Equal(t, []int{1, 2, 3}, order)
}
