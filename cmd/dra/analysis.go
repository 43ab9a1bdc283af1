package main

import (
	"github.com/riftlab/dra/pkg/analysis"
	"github.com/riftlab/dra/pkg/analysis/fixture"
	"github.com/riftlab/dra/pkg/config"
	"github.com/riftlab/dra/pkg/coordinator"
)

// datasetFilesOf extracts the per-dataset ordered file lists cfg carries,
// in the shape pkg/analysis/fixture.New wants: one slice per dataset
// index, so a single Controller can serve every dataset in the run.
func datasetFilesOf(cfg *config.Config) [][]string {
	files := make([][]string, len(cfg.Datasets))
	for i, ds := range cfg.Datasets {
		files[i] = ds.Files
	}
	return files
}

// fixtureControllerFactory returns a coordinator.ControllerFactory backed
// by pkg/analysis/fixture, standing in for the real ROOT-based analysis
// module that is out of scope here. offset is the only knob the fixture
// module exposes; real deployments would replace this factory entirely
// rather than extend it.
func fixtureControllerFactory(offset int32) coordinator.ControllerFactory {
	return func(cfg *config.Config, workerIndex int32) (analysis.Controller, error) {
		return fixture.New(offset, datasetFilesOf(cfg)), nil
	}
}
