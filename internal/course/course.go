// Package course is the read-only catalog certificates are issued against.
// Managing the catalog is out of scope; it is seeded at startup.
package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"certify/pkg/platform/sentinel"
)

// Course is one entry of the catalog.
type Course struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Catalog resolves courses by id.
type Catalog interface {
	FindByID(ctx context.Context, id string) (*Course, error)
	List(ctx context.Context) ([]Course, error)
}

// Defaults is the catalog a fresh deployment starts with.
func Defaults() []Course {
	return []Course{
		{ID: "C1", Title: "Computer Science"},
		{ID: "C2", Title: "Business"},
		{ID: "C3", Title: "IT"},
		{ID: "C4", Title: "Engineering"},
	}
}

type InMemoryCatalog struct {
	mu      sync.RWMutex
	courses map[string]Course
}

func NewInMemoryCatalog(seed ...Course) *InMemoryCatalog {
	c := &InMemoryCatalog{courses: make(map[string]Course, len(seed))}
	for _, course := range seed {
		c.courses[course.ID] = course
	}
	return c
}

func (c *InMemoryCatalog) FindByID(_ context.Context, id string) (*Course, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	course, ok := c.courses[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &course, nil
}

// List returns courses ordered by id.
func (c *InMemoryCatalog) List(_ context.Context) ([]Course, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Course, 0, len(c.courses))
	for _, course := range c.courses {
		out = append(out, course)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put adds or replaces a course. Seeding and tests only.
func (c *InMemoryCatalog) Put(course Course) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.courses[course.ID] = course
}

// Remove deletes a course. Seeding and tests only.
func (c *InMemoryCatalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.courses, id)
}

// PostgresCatalog reads the courses table populated by migrations.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) FindByID(ctx context.Context, id string) (*Course, error) {
	var course Course
	err := c.db.QueryRowContext(ctx, `SELECT id, title FROM courses WHERE id = $1`, id).
		Scan(&course.ID, &course.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

func (c *PostgresCatalog) List(ctx context.Context) ([]Course, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, title FROM courses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		var course Course
		if err := rows.Scan(&course.ID, &course.Title); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, course)
	}
	return out, rows.Err()
}
