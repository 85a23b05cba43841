package nuclei

import (
	"strconv"
	"strings"

	domain "github.com/bryanwahyu/vulnwatch/internal/domain/scans"
)

// buildArgs assembles the command line for one invocation. The output file is
// the JSONL export the parser reads after exit.
func (r *Runner) buildArgs(target, outputFile string, opts domain.RunOptions) []string {
	args := []string{
		"-target", target,
		"-json-export", outputFile,
		"-rate-limit", strconv.Itoa(r.rateLimit),
		"-bulk-size", strconv.Itoa(r.bulkSize),
		"-timeout", "10", // per-request timeout, not the scan ceiling
		"-retries", "1",
		"-no-color",
		"-silent",
	}

	if len(opts.SeverityFilter) > 0 {
		levels := make([]string, 0, len(opts.SeverityFilter))
		for _, s := range opts.SeverityFilter {
			levels = append(levels, string(s))
		}
		args = append(args, "-severity", strings.Join(levels, ","))
	}

	if r.templatesPath != "" {
		args = append(args, "-templates", r.templatesPath)
	}

	return args
}
