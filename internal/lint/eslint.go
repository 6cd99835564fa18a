package lint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

// ESLintEngine runs eslint over one file and maps its JSON report onto the
// severity model. ESLint's own severity numbering (1 warning, 2 error) is
// the numbering the pipeline blocks on.
type ESLintEngine struct {
	Command []string // defaults to {"npx", "eslint"}
}

// eslintResult mirrors one entry of eslint's --format json output.
type eslintResult struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   string `json:"ruleId"`
		Severity int    `json:"severity"`
		Message  string `json:"message"`
		Line     int    `json:"line"`
	} `json:"messages"`
}

func (e ESLintEngine) Lint(ctx context.Context, configPath, filePath string, _ []byte) (Result, error) {
	args := e.Command
	if len(args) == 0 {
		args = []string{"npx", "eslint"}
	}
	args = append(append([]string{}, args...), "--format", "json")
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	args = append(args, filePath)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// eslint exits non-zero when it finds errors; that is a report, not a
	// tool failure. Only an empty report stream means the tool itself broke.
	err := cmd.Run()
	if err != nil && stdout.Len() == 0 {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return Result{}, fmt.Errorf("lint engine failed: %w: %s", err, stderr.String())
		}
		return Result{}, fmt.Errorf("lint engine failed: %w", err)
	}

	var results []eslintResult
	if err := json.Unmarshal(stdout.Bytes(), &results); err != nil {
		return Result{}, fmt.Errorf("parse lint report: %w", err)
	}

	var res Result
	for _, r := range results {
		for _, m := range r.Messages {
			res.Issues = append(res.Issues, Issue{
				FilePath: r.FilePath,
				Severity: Severity(m.Severity),
				Rule:     m.RuleID,
				Message:  m.Message,
				Line:     m.Line,
			})
		}
	}
	return res, nil
}
