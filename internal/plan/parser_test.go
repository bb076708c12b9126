package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/slurmplan/internal/errs"
)

func TestParsePlan_RootMustBeGroup(t *testing.T) {
	_, err := ParsePlan(map[string]interface{}{
		"job": map[string]interface{}{"preamble_key": "p", "command": "echo hi"},
	})
	require.Error(t, err)
	kind, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.InvalidPlan, kind)
}

func TestParsePlan_SequentialGroup(t *testing.T) {
	raw := map[string]interface{}{
		"group": map[string]interface{}{
			"kind": "sequential",
			"name": "stage1",
			"jobs": []interface{}{
				map[string]interface{}{"job": map[string]interface{}{
					"preamble_key": "gpu", "command": "echo a", "name": "a",
				}},
				map[string]interface{}{"job": map[string]interface{}{
					"preamble_key": "gpu", "command": "echo b",
				}},
			},
		},
	}

	root, err := ParsePlan(raw)
	require.NoError(t, err)
	assert.Equal(t, Sequential, root.Kind)
	assert.Equal(t, "stage1", root.Name)
	require.Len(t, root.Children, 2)

	job, ok := root.Children[0].(*Job)
	require.True(t, ok)
	assert.Equal(t, "echo a", job.Command)
	assert.Equal(t, "a", job.Name)
}

func TestParsePlan_SequentialRequiresJobs(t *testing.T) {
	raw := map[string]interface{}{
		"group": map[string]interface{}{"kind": "sequential"},
	}
	_, err := ParsePlan(raw)
	require.Error(t, err)
}

func TestParsePlan_SweepPreservesKeyOrder(t *testing.T) {
	raw := map[string]interface{}{
		"group": map[string]interface{}{
			"kind": "sweep",
			"sweep": []interface{}{
				map[string]interface{}{"lr": []interface{}{"0.1", "0.01"}},
				map[string]interface{}{"batch": []interface{}{"32", "64"}},
			},
			"sweep_template": "train --lr={lr} --batch={batch}",
			"preamble_key":   "gpu",
		},
	}

	root, err := ParsePlan(raw)
	require.NoError(t, err)
	require.Len(t, root.Sweep, 2)
	assert.Equal(t, "lr", root.Sweep[0].Name)
	assert.Equal(t, "batch", root.Sweep[1].Name)
	assert.Equal(t, []string{"0.1", "0.01"}, root.Sweep[0].Values)
}

func TestParsePlan_SweepRequiresTemplate(t *testing.T) {
	raw := map[string]interface{}{
		"group": map[string]interface{}{
			"kind": "sweep",
			"sweep": []interface{}{
				map[string]interface{}{"lr": []interface{}{"0.1"}},
			},
		},
	}
	_, err := ParsePlan(raw)
	require.Error(t, err)
}

func TestParsePlan_LoopDefaultsToSequentialKind(t *testing.T) {
	raw := map[string]interface{}{
		"group": map[string]interface{}{
			"kind":       "loop",
			"loop_count": 3,
			"jobs": []interface{}{
				map[string]interface{}{"job": map[string]interface{}{
					"preamble_key": "gpu", "command": "echo {loop_idx}",
				}},
			},
		},
	}
	root, err := ParsePlan(raw)
	require.NoError(t, err)
	assert.Equal(t, Loop, root.Kind)
	assert.Equal(t, Sequential, root.LoopKind)
	assert.Equal(t, 3, root.LoopCount)
}

func TestParsePlan_LoopRequiresPositiveCount(t *testing.T) {
	raw := map[string]interface{}{
		"group": map[string]interface{}{
			"kind":       "loop",
			"loop_count": 0,
			"jobs": []interface{}{
				map[string]interface{}{"job": map[string]interface{}{
					"preamble_key": "gpu", "command": "echo hi",
				}},
			},
		},
	}
	_, err := ParsePlan(raw)
	require.Error(t, err)
}

func TestParsePlan_RejectsUnknownKeys(t *testing.T) {
	raw := map[string]interface{}{
		"group": map[string]interface{}{
			"kind":  "parallel",
			"jobs":  []interface{}{},
			"bogus": "field",
		},
	}
	_, err := ParsePlan(raw)
	require.Error(t, err)
}
