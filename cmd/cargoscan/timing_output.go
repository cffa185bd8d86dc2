package main

import (
	"fmt"
	"io"
	"time"

	"cargoscan/internal/buildpipeline"
)

// printStageTimings prints the stages cargo reported, in pipeline order.
func printStageTimings(out io.Writer, timings buildpipeline.Timings) {
	for _, stage := range []buildpipeline.Stage{
		buildpipeline.StageResolve,
		buildpipeline.StageCompile,
		buildpipeline.StageFinish,
		buildpipeline.StageClean,
		buildpipeline.StageBuild,
	} {
		if timings.Has(stage) {
			fmt.Fprintf(out, "%-8s %.1f ms\n", stage, toMillis(timings.Duration(stage)))
		}
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
