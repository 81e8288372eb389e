package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/entities"
)

const issueColumns = `id, tool, rule_id, category, severity, title, description, cwe, owasp, entity_id,
	file_path, line, col, code_snippet, context, remediation, status, discovered_at, last_scanned, confidence`

const vulnerabilityColumns = `id, package_name, version, ecosystem, vulnerability_id, title, description, severity,
	cvss_score, affected_versions, fixed_in_version, published_at, last_updated, exploitability, manifest_path, status`

func insertIssue(ctx context.Context, tx *sql.Tx, scanID string, issue entities.SecurityIssue) error {
	codeContext, err := marshalJSON(issue.Context)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO issues (scan_id, "+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scanID, issue.ID, issue.Tool, issue.RuleID, string(issue.Category), string(issue.Severity),
		issue.Title, issue.Description, issue.CWE, issue.OWASP, issue.EntityID,
		issue.FilePath, issue.Line, issue.Column, issue.CodeSnippet, codeContext, issue.Remediation,
		string(issue.Status), nullTime(issue.DiscoveredAt), nullTime(issue.LastScanned), issue.Confidence)
	if err != nil {
		return fmt.Errorf("saving issue %s: %w", issue.ID, err)
	}

	if !issue.DiscoveredAt.IsZero() {
		_, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO issue_first_seen (issue_id, discovered_at) VALUES (?, ?)",
			issue.ID, formatTime(issue.DiscoveredAt))
		if err != nil {
			return fmt.Errorf("recording first sighting of %s: %w", issue.ID, err)
		}
	}
	return nil
}

func insertVulnerability(ctx context.Context, tx *sql.Tx, scanID string, v entities.Vulnerability) error {
	_, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO vulnerabilities (scan_id, "+vulnerabilityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scanID, v.ID, v.PackageName, v.Version, string(v.Ecosystem), v.VulnerabilityID, v.Title, v.Description,
		string(v.Severity), v.CVSSScore, v.AffectedVersions, v.FixedInVersion, nullTime(v.PublishedAt),
		nullTime(v.LastUpdated), string(v.Exploitability), v.ManifestPath, string(v.Status))
	if err != nil {
		return fmt.Errorf("saving vulnerability %s: %w", v.ID, err)
	}
	return nil
}

// FindIssues returns the issues scanID recorded for the given file paths
func (s *Store) FindIssues(ctx context.Context, scanID string, paths []string) ([]entities.SecurityIssue, error) {
	var out []entities.SecurityIssue
	for _, chunk := range chunks(paths) {
		args := append([]any{scanID}, toArgs(chunk)...)
		issues, err := s.queryIssues(ctx, "WHERE scan_id = ? AND file_path IN ("+placeholders(len(chunk))+")", args...)
		if err != nil {
			return nil, err
		}
		out = append(out, issues...)
	}
	return out, nil
}

// FindVulnerabilities returns the vulnerabilities scanID recorded for the
// given manifest paths
func (s *Store) FindVulnerabilities(ctx context.Context, scanID string, paths []string) ([]entities.Vulnerability, error) {
	var out []entities.Vulnerability
	for _, chunk := range chunks(paths) {
		args := append([]any{scanID}, toArgs(chunk)...)
		vulns, err := s.queryVulnerabilities(ctx, "WHERE scan_id = ? AND manifest_path IN ("+placeholders(len(chunk))+")", args...)
		if err != nil {
			return nil, err
		}
		out = append(out, vulns...)
	}
	return out, nil
}

// FindDiscoveredAt returns first-seen times for issue ids seen before
func (s *Store) FindDiscoveredAt(ctx context.Context, issueIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	for _, chunk := range chunks(issueIDs) {
		rows, err := s.db.QueryContext(ctx,
			"SELECT issue_id, discovered_at FROM issue_first_seen WHERE issue_id IN ("+placeholders(len(chunk))+")",
			toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("querying first sightings: %w", err)
		}
		for rows.Next() {
			var id, at string
			if err := rows.Scan(&id, &at); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning first sighting row: %w", err)
			}
			out[id] = parseTime(at)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) queryIssues(ctx context.Context, where string, args ...any) ([]entities.SecurityIssue, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+issueColumns+" FROM issues "+where+" ORDER BY seq", args...)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	var out []entities.SecurityIssue
	for rows.Next() {
		var (
			issue                              entities.SecurityIssue
			tool, category, title, description sql.NullString
			cwe, owasp, entityID, filePath     sql.NullString
			snippet, codeContext, remediation  sql.NullString
			severity, status                   string
			discovered, lastScanned            sql.NullString
			line, column                       sql.NullInt64
			confidence                         sql.NullFloat64
		)
		err := rows.Scan(&issue.ID, &tool, &issue.RuleID, &category, &severity, &title, &description, &cwe, &owasp,
			&entityID, &filePath, &line, &column, &snippet, &codeContext, &remediation, &status, &discovered,
			&lastScanned, &confidence)
		if err != nil {
			return nil, fmt.Errorf("scanning issue row: %w", err)
		}

		issue.Tool = tool.String
		issue.Category = entities.RuleCategory(category.String)
		issue.Severity = entities.ParseSeverity(severity)
		issue.Title = title.String
		issue.Description = description.String
		issue.CWE = cwe.String
		issue.OWASP = owasp.String
		issue.EntityID = entityID.String
		issue.FilePath = filePath.String
		issue.Line = int(line.Int64)
		issue.Column = int(column.Int64)
		issue.CodeSnippet = snippet.String
		issue.Remediation = remediation.String
		issue.Status = entities.ParseIssueStatus(status)
		issue.DiscoveredAt = parseTime(discovered.String)
		issue.LastScanned = parseTime(lastScanned.String)
		issue.Confidence = confidence.Float64
		if codeContext.Valid {
			if err := unmarshalJSON(codeContext.String, &issue.Context); err != nil {
				return nil, err
			}
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

func (s *Store) queryVulnerabilities(ctx context.Context, where string, args ...any) ([]entities.Vulnerability, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+vulnerabilityColumns+" FROM vulnerabilities "+where+" ORDER BY seq", args...)
	if err != nil {
		return nil, fmt.Errorf("querying vulnerabilities: %w", err)
	}
	defer rows.Close()

	var out []entities.Vulnerability
	for rows.Next() {
		var (
			v                                   entities.Vulnerability
			version, ecosystem, title, desc     sql.NullString
			affected, fixed, published, updated sql.NullString
			exploitability, manifest            sql.NullString
			severity, status                    string
			cvss                                sql.NullFloat64
		)
		err := rows.Scan(&v.ID, &v.PackageName, &version, &ecosystem, &v.VulnerabilityID, &title, &desc, &severity,
			&cvss, &affected, &fixed, &published, &updated, &exploitability, &manifest, &status)
		if err != nil {
			return nil, fmt.Errorf("scanning vulnerability row: %w", err)
		}

		v.Version = version.String
		v.Ecosystem = entities.Ecosystem(ecosystem.String)
		v.Title = title.String
		v.Description = desc.String
		v.Severity = entities.ParseSeverity(severity)
		v.CVSSScore = cvss.Float64
		v.AffectedVersions = affected.String
		v.FixedInVersion = fixed.String
		v.PublishedAt = parseTime(published.String)
		v.LastUpdated = parseTime(updated.String)
		v.Exploitability = entities.Exploitability(exploitability.String)
		v.ManifestPath = manifest.String
		v.Status = entities.ParseIssueStatus(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

func marshalJSON(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalJSON(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decoding column: %w", err)
	}
	return nil
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
