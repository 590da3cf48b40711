package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, *Run) error { return nil }

func TestClaimOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Claim
		want bool
	}{
		{"same dir disjoint exts", Files("dist/img", "webp"), Files("dist/img", "avif"), false},
		{"same dir shared ext", Files("dist/img", "png", "jpg"), Files("dist/img", ".JPG"), true},
		{"all files", Files("dist/img"), Files("dist/img", "avif"), true},
		{"sibling dirs", Tree("dist/css"), Tree("dist/js"), false},
		{"recursive parent", Tree("dist"), Files("dist/css", "css"), true},
		{"flat parent", Files("dist", "html"), Files("dist/css", "html"), false},
		{"recursive child vs flat parent", Tree("dist/css"), Files("dist", "css"), false},
		{"prefix but not parent", Tree("dist/im"), Files("dist/img"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestValidateRejectsOverlappingParallelMembers(t *testing.T) {
	a := NewTask("webp", "", noop, Files("dist/img", "webp"))
	b := NewTask("also-webp", "", noop, Files("dist/img", "webp"))

	err := Validate(Series("all", Parallel("images", a, b)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write to the same files")
}

func TestValidateAllowsOverlapInSeries(t *testing.T) {
	a := NewTask("images", "", noop, Files("dist/img", "png"))
	b := NewTask("cache", "", noop, Tree("dist"))

	assert.NoError(t, Validate(Series("all", a, b)))
}

func TestValidateRejectsDuplicateTaskInParallel(t *testing.T) {
	a := NewTask("html", "", noop)

	err := Validate(Parallel("twice", a, Series("nested", a)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestValidateRejectsBrokenTasks(t *testing.T) {
	assert.Error(t, Validate(&Task{Fn: noop}))
	assert.Error(t, Validate(&Task{Short: "x"}))
	assert.Error(t, Validate(Series("s", nil)))
}

func TestTasksFlattensTree(t *testing.T) {
	a := NewTask("a", "", noop)
	b := NewTask("b", "", noop)
	c := NewTask("c", "", noop)

	tasks := Tasks(Series("all", a, Parallel("p", b, c)))
	require.Len(t, tasks, 3)
	assert.Equal(t, "a", tasks[0].Short)
	assert.Equal(t, "c", tasks[2].Short)
}
