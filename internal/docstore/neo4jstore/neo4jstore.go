// Package neo4jstore is a document store backed by Neo4j. Each note is a
// :Note node linked to its owner's :Owner node.
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/voxnote/internal/apperr"
	"github.com/starford/voxnote/internal/docstore"
	"github.com/starford/voxnote/internal/models"
)

// Store implements docstore.DocumentStore on a Neo4j driver.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

var _ docstore.DocumentStore = (*Store)(nil)

// Open connects to uri and verifies connectivity.
func Open(ctx context.Context, uri, username, password, database string, logger *slog.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jstore: connect: %w", err)
	}
	s := New(driver, database, logger)
	if err := s.ensureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps an existing driver. The caller keeps ownership of schema setup.
func New(driver neo4j.DriverWithContext, database string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{driver: driver, database: database, logger: logger}
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *Store) closeSession(ctx context.Context, session neo4j.SessionWithContext) {
	if err := session.Close(ctx); err != nil {
		s.logger.Warn("neo4jstore: close session", slog.String("error", err.Error()))
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer s.closeSession(ctx, session)

	for _, q := range []string{
		`CREATE CONSTRAINT note_id IF NOT EXISTS FOR (n:Note) REQUIRE n.id IS UNIQUE`,
		`CREATE CONSTRAINT owner_id IF NOT EXISTS FOR (o:Owner) REQUIRE o.id IS UNIQUE`,
	} {
		res, err := session.Run(ctx, q, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			return fmt.Errorf("neo4jstore: schema: %w", err)
		}
	}
	return nil
}

const noteReturn = `
	RETURN n.id AS id, o.id AS owner_id, n.title AS title, n.content AS content,
	       n.is_bookmarked AS is_bookmarked, n.created_at AS created_at, n.updated_at AS updated_at
`

// Create stores a new :Note node with a server-generated id and datetime().
func (s *Store) Create(ctx context.Context, ownerID, title, content string) (models.Note, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer s.closeSession(ctx, session)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		query := `
			MERGE (o:Owner {id: $owner_id})
			CREATE (o)-[:OWNS]->(n:Note {
				id: randomUUID(),
				title: $title,
				content: $content,
				is_bookmarked: false,
				created_at: datetime(),
				updated_at: datetime()
			})
		` + noteReturn

		params := map[string]interface{}{
			"owner_id": ownerID,
			"title":    title,
			"content":  content,
		}
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return recordToNote(record)
	})
	if err != nil {
		return models.Note{}, fmt.Errorf("neo4jstore: create note: %w", err)
	}
	return result.(models.Note), nil
}

// Get returns the note with the given id.
func (s *Store) Get(ctx context.Context, id string) (models.Note, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer s.closeSession(ctx, session)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `MATCH (o:Owner)-[:OWNS]->(n:Note {id: $id})`+noteReturn,
			map[string]interface{}{"id": id})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, apperr.ErrNotFound
		}
		return recordToNote(records[0])
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.Note{}, err
		}
		return models.Note{}, fmt.Errorf("neo4jstore: get note: %w", err)
	}
	return result.(models.Note), nil
}

// ListByOwner returns all notes of ownerID, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]models.Note, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer s.closeSession(ctx, session)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		query := `MATCH (o:Owner {id: $owner_id})-[:OWNS]->(n:Note)` + noteReturn +
			`ORDER BY n.created_at DESC, n.id DESC`
		res, err := tx.Run(ctx, query, map[string]interface{}{"owner_id": ownerID})
		if err != nil {
			return nil, err
		}
		notes := []models.Note{}
		for res.Next(ctx) {
			n, err := recordToNote(res.Record())
			if err != nil {
				return nil, err
			}
			notes = append(notes, n)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return notes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: list notes: %w", err)
	}
	return result.([]models.Note), nil
}

// Update sets the given properties and refreshes updated_at.
func (s *Store) Update(ctx context.Context, id string, fields models.Fields) (time.Time, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer s.closeSession(ctx, session)

	params := map[string]interface{}{"id": id}
	set := "SET n.updated_at = datetime()"
	if fields.Title != nil {
		set += ", n.title = $title"
		params["title"] = *fields.Title
	}
	if fields.Content != nil {
		set += ", n.content = $content"
		params["content"] = *fields.Content
	}
	if fields.IsBookmarked != nil {
		set += ", n.is_bookmarked = $is_bookmarked"
		params["is_bookmarked"] = *fields.IsBookmarked
	}

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		query := `
			MATCH (n:Note {id: $id})
			` + set + `
			RETURN n.updated_at AS updated_at
		`
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, apperr.ErrNotFound
		}
		v, _ := records[0].Get("updated_at")
		return asTime(v), nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("neo4jstore: update note: %w", err)
	}
	return result.(time.Time), nil
}

// Delete removes the note node and its relationships.
func (s *Store) Delete(ctx context.Context, id string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer s.closeSession(ctx, session)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		res, err := tx.Run(ctx, `MATCH (n:Note {id: $id}) DETACH DELETE n`,
			map[string]interface{}{"id": id})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4jstore: delete note: %w", err)
	}
	return nil
}

// Close closes the driver.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

func recordToNote(record *neo4j.Record) (models.Note, error) {
	var n models.Note
	id, _ := record.Get("id")
	s, ok := id.(string)
	if !ok {
		return n, errors.New("unexpected type for 'id' column")
	}
	n.ID = s
	if v, _ := record.Get("owner_id"); v != nil {
		n.OwnerID, _ = v.(string)
	}
	if v, _ := record.Get("title"); v != nil {
		n.Title, _ = v.(string)
	}
	if v, _ := record.Get("content"); v != nil {
		n.Content, _ = v.(string)
	}
	if v, _ := record.Get("is_bookmarked"); v != nil {
		n.IsBookmarked, _ = v.(bool)
	}
	created, _ := record.Get("created_at")
	updated, _ := record.Get("updated_at")
	n.CreatedAt = asTime(created)
	n.UpdatedAt = asTime(updated)
	return n, nil
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case neo4j.LocalDateTime:
		return t.Time().UTC()
	default:
		return time.Time{}
	}
}
