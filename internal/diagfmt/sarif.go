package diagfmt

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"cargoscan/internal/diag"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Invocations []sarifInvocation `json:"invocations,omitempty"`
	Results     []sarifResult     `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID      string        `json:"id"`
	HelpURI string        `json:"helpUri,omitempty"`
	Short   *sarifMessage `json:"shortDescription,omitempty"`
}

type sarifInvocation struct {
	CommandLine         string `json:"commandLine,omitempty"`
	ExecutionSuccessful bool   `json:"executionSuccessful"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId,omitempty"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	Physical sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	Artifact sarifArtifact `json:"artifactLocation"`
	Region   *sarifRegion  `json:"region,omitempty"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

// Sarif writes the diagnostics as a SARIF v2.1.0 log with a single run.
// Rules are the distinct compiler codes; a code's help URL is the first
// link target seen for it.
func Sarif(w io.Writer, bag *diag.Bag, meta SarifRunMeta) error {
	run := sarifRun{
		Tool:    sarifTool{Driver: sarifDriver{Name: meta.ToolName, Version: meta.ToolVersion}},
		Results: []sarifResult{},
	}
	if len(meta.InvocationArgs) > 0 {
		run.Invocations = []sarifInvocation{{
			CommandLine:         strings.Join(meta.InvocationArgs, " "),
			ExecutionSuccessful: meta.Success,
		}}
	}

	rules := map[string]*sarifRule{}
	if bag != nil {
		for _, d := range bag.Items() {
			res := sarifResult{
				RuleID:  d.Code,
				Level:   sarifLevel(d.Severity),
				Message: sarifMessage{Text: d.Text()},
			}
			if d.File != "" {
				loc := sarifLocation{Physical: sarifPhysical{
					Artifact: sarifArtifact{URI: formatPath(d.File, PathModeRelative, meta.BaseDir)},
				}}
				if d.Line > 0 {
					loc.Physical.Region = &sarifRegion{StartLine: d.Line}
				}
				res.Locations = []sarifLocation{loc}
			}
			run.Results = append(run.Results, res)

			if d.Code == "" {
				continue
			}
			rule, ok := rules[d.Code]
			if !ok {
				rule = &sarifRule{ID: d.Code, Short: &sarifMessage{Text: d.Summary()}}
				rules[d.Code] = rule
			}
			if rule.HelpURI == "" {
				for _, l := range d.Links {
					if strings.HasPrefix(l.Target, "http") {
						rule.HelpURI = l.Target
						break
					}
				}
			}
		}
	}
	for _, r := range rules {
		run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, *r)
	}
	sort.Slice(run.Tool.Driver.Rules, func(i, j int) bool {
		return run.Tool.Driver.Rules[i].ID < run.Tool.Driver.Rules[j].ID
	})

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(sarifLog{Version: sarifVersion, Schema: sarifSchema, Runs: []sarifRun{run}})
}

func sarifLevel(s diag.Severity) string {
	switch s {
	case diag.SevError:
		return "error"
	case diag.SevWarning:
		return "warning"
	}
	return "note"
}
