package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service serves course lookups with a Redis read-through cache for public reads.
type Service struct {
	Store Store
	Cache *Cache
	Log   zerolog.Logger
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []CourseView
	Total int64
}

// Course returns a single course, preferring the cache.
func (s *Service) Course(ctx context.Context, id uuid.UUID) (Course, error) {
	if s == nil || s.Store == nil {
		return Course{}, errors.New("catalog service not configured")
	}
	if cached, ok, err := s.Cache.Get(ctx, id); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.Log.Warn().Err(err).Str("course_id", id.String()).Msg("course cache read failed")
	}
	c, err := s.Store.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if err := s.Cache.Put(ctx, c); err != nil {
		s.Log.Warn().Err(err).Str("course_id", id.String()).Msg("course cache write failed")
	}
	return c, nil
}

// Fresh returns the courses straight from the database. Checkout pricing uses
// this so availability and offers are never stale.
func (s *Service) Fresh(ctx context.Context, ids []uuid.UUID) ([]Course, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("catalog service not configured")
	}
	courses, err := s.Store.GetCourses(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load courses: %w", err)
	}
	return courses, nil
}

// FreshOne returns one course straight from the database.
func (s *Service) FreshOne(ctx context.Context, id uuid.UUID) (Course, error) {
	if s == nil || s.Store == nil {
		return Course{}, errors.New("catalog service not configured")
	}
	return s.Store.GetCourse(ctx, id)
}

// List returns published courses.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	if s == nil || s.Store == nil {
		return ListResult{}, errors.New("catalog service not configured")
	}
	courses, total, err := s.Store.ListPublished(ctx, params)
	if err != nil {
		return ListResult{}, fmt.Errorf("list courses: %w", err)
	}
	views := make([]CourseView, 0, len(courses))
	for _, c := range courses {
		views = append(views, c.View())
	}
	return ListResult{Items: views, Total: total}, nil
}
