package services

import (
	"context"
	"crypto/sha1" //nolint:gosec // fingerprint only, not a security boundary
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces"
	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/services"
)

// DefaultMaxFileSize is the byte ceiling above which files are skipped
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// snippetRadius is the number of lines kept on each side of a match
const snippetRadius = 2

// RuleEngineConfig configures the rule engine
type RuleEngineConfig struct {
	MaxFileSize int64
	// Tool is stamped on every issue; defaults to "sast"
	Tool string
}

type ruleEngine struct {
	fs          afero.Fs
	logger      interfaces.Logger
	catalog     []catalogRule
	byID        map[string]entities.SecurityRule
	maxFileSize int64
	tool        string
	now         func() time.Time
}

// NewRuleEngine creates a rule engine over the built-in rule catalog
func NewRuleEngine(fs afero.Fs, logger interfaces.Logger, cfg RuleEngineConfig) services.RuleEngine {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Tool == "" {
		cfg.Tool = "sast"
	}

	catalog := buildCatalog()
	byID := make(map[string]entities.SecurityRule, len(catalog))
	for _, c := range catalog {
		byID[c.rule.ID] = c.rule
	}

	return &ruleEngine{
		fs:          fs,
		logger:      interfaces.OrNoOp(logger),
		catalog:     catalog,
		byID:        byID,
		maxFileSize: cfg.MaxFileSize,
		tool:        cfg.Tool,
		now:         time.Now,
	}
}

// Rules returns a copy of the rule catalog
func (r *ruleEngine) Rules() []entities.SecurityRule {
	rules := make([]entities.SecurityRule, 0, len(r.catalog))
	for _, c := range r.catalog {
		rules = append(rules, c.rule)
	}
	return rules
}

// Rule looks up a rule by id
func (r *ruleEngine) Rule(id string) (entities.SecurityRule, bool) {
	rule, ok := r.byID[id]
	return rule, ok
}

// Scan matches every applicable rule against every readable file entity.
// Unreadable or oversized files are logged and skipped.
func (r *ruleEngine) Scan(_ context.Context, items []entities.Entity, opts entities.ScanOptions) ([]entities.SecurityIssue, error) {
	enabled := make(map[entities.RuleCategory]bool)
	for _, c := range opts.EnabledCategories() {
		enabled[c] = true
	}

	var issues []entities.SecurityIssue
	for _, item := range items {
		if !item.IsFile() {
			continue
		}

		rules := r.applicableRules(item.Extension(), enabled, opts)
		if len(rules) == 0 {
			continue
		}

		content, err := r.readContent(item.Path)
		if err != nil {
			r.logger.Warn("skipping file",
				interfaces.F("path", item.Path),
				interfaces.Err(err),
			)
			continue
		}

		found := r.scanContent(item, content, rules)
		r.logger.Debug("scanned file",
			interfaces.F("path", item.Path),
			interfaces.F("rules", len(rules)),
			interfaces.F("issues", len(found)),
		)
		issues = append(issues, found...)
	}

	return issues, nil
}

func (r *ruleEngine) applicableRules(ext string, enabled map[entities.RuleCategory]bool, opts entities.ScanOptions) []entities.SecurityRule {
	var rules []entities.SecurityRule
	for _, c := range r.catalog {
		if !enabled[c.rule.Category] {
			continue
		}
		if !c.rule.Severity.AtLeast(opts.SeverityThreshold) {
			continue
		}
		if c.rule.Confidence < opts.ConfidenceThreshold {
			continue
		}
		if !ruleAppliesToExtension(c, ext) {
			continue
		}
		rules = append(rules, c.rule)
	}
	return rules
}

func (r *ruleEngine) readContent(path string) (string, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > r.maxFileSize {
		return "", fmt.Errorf("%w: %d bytes", entities.ErrFileTooLarge, info.Size())
	}

	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

func (r *ruleEngine) scanContent(item entities.Entity, content string, rules []entities.SecurityRule) []entities.SecurityIssue {
	lines := strings.Split(content, "\n")
	newlines := newlineOffsets(content)
	now := r.now()

	var issues []entities.SecurityIssue
	for _, rule := range rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(content, -1) {
			line, column := position(newlines, loc[0])
			snippet, ctx := extractSnippet(lines, line)

			issues = append(issues, entities.SecurityIssue{
				ID:           Fingerprint(item.ID, rule.ID, line, snippet),
				Tool:         r.tool,
				RuleID:       rule.ID,
				Category:     rule.Category,
				Severity:     rule.Severity,
				Title:        rule.Name,
				Description:  rule.Description,
				CWE:          rule.CWE,
				OWASP:        rule.OWASP,
				EntityID:     item.ID,
				FilePath:     item.Path,
				Line:         line,
				Column:       column,
				CodeSnippet:  snippet,
				Context:      ctx,
				Remediation:  rule.Remediation,
				Status:       entities.StatusOpen,
				DiscoveredAt: now,
				LastScanned:  now,
				Confidence:   rule.Confidence,
			})
		}
	}
	return issues
}

// Fingerprint derives the stable issue id from entity, rule, line and snippet
func Fingerprint(entityID, ruleID string, line int, snippet string) string {
	h := sha1.New() //nolint:gosec // fingerprint only
	h.Write([]byte(entityID + "|" + ruleID + "|" + strconv.Itoa(line) + "|" + snippet))
	return "sec_" + hex.EncodeToString(h.Sum(nil))
}

func newlineOffsets(content string) []int {
	var offsets []int
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

// position converts a byte offset to a 1-based line and column
func position(newlines []int, offset int) (line, column int) {
	// number of newlines strictly before offset
	n := sort.SearchInts(newlines, offset)
	line = n + 1
	if n == 0 {
		return line, offset + 1
	}
	return line, offset - newlines[n-1]
}

func extractSnippet(lines []string, line int) (string, entities.CodeContext) {
	idx := line - 1
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + snippetRadius + 1
	if end > len(lines) {
		end = len(lines)
	}

	ctx := entities.CodeContext{
		Before: append([]string{}, lines[start:idx]...),
		After:  append([]string{}, lines[idx+1:end]...),
	}
	return strings.Join(lines[start:end], "\n"), ctx
}
