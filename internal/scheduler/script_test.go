package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderScript_OrdersDirectivesThenDependencyThenShellThenCommand(t *testing.T) {
	preamble := "#!/bin/bash\n#SBATCH --job-name=x\nmodule load cuda\nexport FOO=bar"
	got := RenderScript(preamble, []string{"1", "2"}, "afterok", "python train.py")

	want := "#!/bin/bash\n" +
		"#SBATCH --job-name=x\n" +
		"#SBATCH --dependency=afterok:1:2\n" +
		"module load cuda\n" +
		"export FOO=bar\n" +
		"python train.py\n"
	assert.Equal(t, want, got)
}

func TestRenderScript_NoDependencyLineWithoutParents(t *testing.T) {
	got := RenderScript("#!/bin/bash\n#SBATCH --job-name=x", nil, "afterok", "echo hi")
	assert.NotContains(t, got, "--dependency")
}
