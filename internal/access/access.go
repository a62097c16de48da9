// Package access links caller sessions to identities, tracks grants on
// indexes, and performs the access-gated semantic search callers
// ultimately want. It never manufactures identities: a session must be
// linked before it resolves to one.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/docsearch/internal/apperr"
	"github.com/knoguchi/docsearch/internal/db"
	"github.com/knoguchi/docsearch/internal/embedding"
	"github.com/knoguchi/docsearch/internal/jobstore"
	"github.com/knoguchi/docsearch/internal/vectorstore"
)

// Level is a closed enumeration of access levels, ranked
// read < write < admin.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"
)

var levelRank = map[Level]int{
	LevelRead:  1,
	LevelWrite: 2,
	LevelAdmin: 3,
}

func (l Level) rank() int { return levelRank[l] }

// meets reports whether l satisfies a requirement of required.
func (l Level) meets(required Level) bool { return l.rank() >= required.rank() }

// Result is one semantic-search hit returned to the caller.
type Result struct {
	URL      string
	Title    string
	Snippet  string
	Score    float64
}

const maxSnippetLen = 500

// Model links sessions to identities and gates searches on grants.
type Model struct {
	db        *db.DB
	store     *vectorstore.Store
	embedder  *embedding.Client
}

// New constructs a Model.
func New(database *db.DB, store *vectorstore.Store, embedder *embedding.Client) *Model {
	return &Model{db: database, store: store, embedder: embedder}
}

// EnsureSchema creates the user_links and doc_access tables if absent.
func (m *Model) EnsureSchema(ctx context.Context) error {
	_, err := m.db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_links (
			session_id TEXT PRIMARY KEY,
			user_id TEXT,
			team_id TEXT,
			scope TEXT NOT NULL,
			linked_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS doc_access (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT,
			team_id TEXT,
			scope TEXT NOT NULL,
			index_name TEXT NOT NULL,
			access_level TEXT NOT NULL,
			granted_by TEXT NOT NULL,
			expires_at TIMESTAMPTZ,
			UNIQUE NULLS NOT DISTINCT (user_id, team_id, scope, index_name)
		);
	`)
	if err != nil {
		return fmt.Errorf("access: ensure schema: %w", err)
	}
	return nil
}

// LinkSession upserts the (user|team) identity associated with a
// session_id; scope selects which identifier field is populated.
func (m *Model) LinkSession(ctx context.Context, sessionID string, identity jobstore.Identity) error {
	var userID, teamID *string
	if identity.Scope == jobstore.ScopeTeam {
		teamID = &identity.TeamID
	} else {
		userID = &identity.UserID
	}

	_, err := m.db.Pool.Exec(ctx, `
		INSERT INTO user_links (session_id, user_id, team_id, scope)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET user_id = $2, team_id = $3, scope = $4, linked_at = now()
	`, sessionID, userID, teamID, identity.Scope)
	if err != nil {
		return fmt.Errorf("access: link session: %w", err)
	}
	return nil
}

// Identity resolves a session_id to the identity linked to it. Returns
// apperr.ErrNotLinked if no link exists.
func (m *Model) Identity(ctx context.Context, sessionID string) (jobstore.Identity, error) {
	var userID, teamID *string
	var scope jobstore.Scope

	err := m.db.Pool.QueryRow(ctx, `
		SELECT user_id, team_id, scope FROM user_links WHERE session_id = $1
	`, sessionID).Scan(&userID, &teamID, &scope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobstore.Identity{}, apperr.ErrNotLinked
		}
		return jobstore.Identity{}, fmt.Errorf("access: identity: %w", err)
	}

	identity := jobstore.Identity{Scope: scope}
	if userID != nil {
		identity.UserID = *userID
	}
	if teamID != nil {
		identity.TeamID = *teamID
	}
	return identity, nil
}

// Grant upserts an access grant for (target, scope, indexName), unique
// by that tuple. A target with an empty UserID and TeamID is
// universal: it applies to every identity.
func (m *Model) Grant(ctx context.Context, target jobstore.Identity, indexName string, level Level, grantedBy string, expiresAt *time.Time) error {
	var userID, teamID *string
	if target.UserID != "" {
		userID = &target.UserID
	}
	if target.TeamID != "" {
		teamID = &target.TeamID
	}

	_, err := m.db.Pool.Exec(ctx, `
		INSERT INTO doc_access (user_id, team_id, scope, index_name, access_level, granted_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, team_id, scope, index_name) DO UPDATE
		SET access_level = $5, granted_by = $6, expires_at = $7
	`, userID, teamID, target.Scope, indexName, level, grantedBy, expiresAt)
	if err != nil {
		return fmt.Errorf("access: grant: %w", err)
	}
	return nil
}

// AccessibleIndexes returns the distinct index_name values identity
// can reach through a non-expired, matching or universal grant.
func (m *Model) AccessibleIndexes(ctx context.Context, identity jobstore.Identity) ([]string, error) {
	rows, err := m.db.Pool.Query(ctx, `
		SELECT DISTINCT index_name FROM doc_access
		WHERE (expires_at IS NULL OR expires_at > now())
		  AND (
			(user_id IS NULL AND team_id IS NULL)
			OR (scope = $1 AND (
				(scope = 'user' AND user_id = $2) OR
				(scope = 'team' AND team_id = $3)
			))
		  )
	`, identity.Scope, nullableStr(identity.UserID), nullableStr(identity.TeamID))
	if err != nil {
		return nil, fmt.Errorf("access: accessible indexes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("access: scan: %w", err)
		}
		names = append(names, name)
	}
	return names, nil
}

// HasAccess reports whether identity holds a grant on indexName
// meeting or exceeding required.
func (m *Model) HasAccess(ctx context.Context, identity jobstore.Identity, indexName string, required Level) (bool, error) {
	rows, err := m.db.Pool.Query(ctx, `
		SELECT access_level FROM doc_access
		WHERE index_name = $1
		  AND (expires_at IS NULL OR expires_at > now())
		  AND (
			(user_id IS NULL AND team_id IS NULL)
			OR (scope = $2 AND (
				(scope = 'user' AND user_id = $3) OR
				(scope = 'team' AND team_id = $4)
			))
		  )
	`, indexName, identity.Scope, nullableStr(identity.UserID), nullableStr(identity.TeamID))
	if err != nil {
		return false, fmt.Errorf("access: has access: %w", err)
	}
	defer rows.Close()

	best := 0
	for rows.Next() {
		var level Level
		if err := rows.Scan(&level); err != nil {
			return false, fmt.Errorf("access: scan: %w", err)
		}
		if r := level.rank(); r > best {
			best = r
		}
	}
	return best >= required.rank(), nil
}

// Search requires at least read access, embeds query_text, runs an ANN
// search, and returns results with snippets truncated to ≤500 chars.
// Unknown index names and missing grants both surface as
// apperr.ErrAccessDenied, never apperr.ErrNotFound, so existence is
// never leaked to an unauthorized caller.
func (m *Model) Search(ctx context.Context, identity jobstore.Identity, indexName, queryText string, k int) ([]Result, error) {
	ok, err := m.HasAccess(ctx, identity, indexName, LevelRead)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrAccessDenied
	}

	vectors, err := m.embedder.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("access: embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	hits, err := m.store.AnnSearch(ctx, indexName, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("access: ann search: %w", err)
	}

	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			URL:     h.URL,
			Title:   h.Title,
			Snippet: truncate(h.Content, maxSnippetLen),
			Score:   h.Score,
		}
	}
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
