package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/ensemblekit/ensemble/tensor"
	"github.com/ensemblekit/ensemble/yaml"
)

// RunConfig holds configuration for the run command.
type RunConfig struct {
	GraphPath    string
	TrainPath    string
	TestPath     string
	Verbose      bool
	FeaturesPath string
	LabelsPath   string
}

// runGraph fits a declared graph on the training dataset and prints
// predictions for the test dataset (or the training features when no test
// dataset is given).
func runGraph(config *RunConfig) error {
	loader := yaml.NewLoader()
	graph, err := loader.LoadFile(config.GraphPath)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	if config.Verbose {
		log.Printf("Loaded graph from %s (%d inputs, %d outputs)",
			config.GraphPath, len(graph.Sources()), len(graph.Terminals()))
	}

	trainX, trainY, err := loadDataset(config.TrainPath, config.FeaturesPath, config.LabelsPath)
	if err != nil {
		return fmt.Errorf("load training data: %w", err)
	}
	if trainY == nil {
		return fmt.Errorf("training data %s has no labels at %s", config.TrainPath, config.LabelsPath)
	}

	testX := trainX
	if config.TestPath != "" {
		testX, _, err = loadDataset(config.TestPath, config.FeaturesPath, config.LabelsPath)
		if err != nil {
			return fmt.Errorf("load test data: %w", err)
		}
	}

	ctx := context.Background()
	start := time.Now()
	if err := graph.Fit(ctx, trainX, trainY); err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	if config.Verbose {
		log.Printf("Fitted in %v", time.Since(start))
	}

	outputs, err := graph.Predict(ctx, testX)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	fmt.Println(oj.JSON(predictionsDoc(outputs), 2))
	return nil
}

// validateGraph dry-runs a definition: schema, semantic, and structural
// validation, without fitting anything.
func validateGraph(path string) error {
	if _, err := yaml.NewLoader().LoadFile(path); err != nil {
		return err
	}
	return nil
}

// predictionsDoc renders terminal outputs as a JSON-friendly document.
func predictionsDoc(outputs []*tensor.Dense) map[string]any {
	preds := make([]any, len(outputs))
	for i, out := range outputs {
		preds[i] = map[string]any{
			"shape":  out.Shape(),
			"values": out.Data(),
		}
	}
	if len(preds) == 1 {
		return map[string]any{"predictions": preds[0]}
	}
	return map[string]any{"predictions": preds}
}
