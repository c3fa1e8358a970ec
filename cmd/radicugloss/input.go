package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/radicugloss/radicugloss/internal/evaluation"
	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

// readInput reads path, or stdin when path is "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// decodeFile decodes a YAML or JSON document into v. JSON is accepted because
// it is valid YAML.
func decodeFile(path string, stdin io.Reader, v any) error {
	data, err := readInput(path, stdin)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadRelevanceSet reads an item -> relevance mapping.
func loadRelevanceSet(path string, stdin io.Reader) (radicugloss.RelevanceSet, error) {
	var set radicugloss.RelevanceSet
	if err := decodeFile(path, stdin, &set); err != nil {
		return nil, err
	}
	if set == nil {
		set = radicugloss.RelevanceSet{}
	}
	return set, nil
}

// loadJudgmentList reads a list of query/doc judgments.
func loadJudgmentList(path string, stdin io.Reader) ([]evaluation.RelevanceJudgment, error) {
	var judgments []evaluation.RelevanceJudgment
	if err := decodeFile(path, stdin, &judgments); err != nil {
		return nil, err
	}
	return judgments, nil
}

// loadResults reads one item per line, skipping blank lines and # comments.
func loadResults(path string, stdin io.Reader) ([]string, error) {
	data, err := readInput(path, stdin)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var results []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		results = append(results, line)
	}
	return results, nil
}

// parseRelevance converts item=value pairs.
func parseRelevance(pairs map[string]string) (radicugloss.RelevanceSet, error) {
	set := make(radicugloss.RelevanceSet, len(pairs))
	for item, raw := range pairs {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("relevance of %q: %w", item, err)
		}
		set[item] = v
	}
	return set, nil
}
