// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, builds queries and pipelines
//	Repository (data layer)  → reads/writes the store
//
// The service knows nothing about HTTP. It receives plain values, runs them
// through the validation gate, turns them into a query window or a pipeline
// and hands those to the repository.
//
// Failures are returned, not logged: the handler's error translator writes
// the single diagnostic line for every failed request.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sakif/user-directory/internal/apperror"
	"github.com/sakif/user-directory/internal/metrics"
	"github.com/sakif/user-directory/internal/model"
	"github.com/sakif/user-directory/internal/pipeline"
	"github.com/sakif/user-directory/internal/query"
	"github.com/sakif/user-directory/internal/repository"
	"github.com/sakif/user-directory/internal/validation"
)

// Page is one window of the user listing.
type Page struct {
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
	Users []model.User `json:"users"`
}

// UserService handles business logic for user records.
type UserService struct {
	repo      repository.UserRepository
	validator *validation.Validator
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewUserService creates a new UserService. The repository is injected so
// tests can pass an in-memory fake and production passes SQLite.
func NewUserService(
	repo repository.UserRepository,
	v *validation.Validator,
	rec metrics.Recorder,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		repo:      repo,
		validator: v,
		metrics:   rec,
		logger:    logger,
	}
}

// Create validates a creation payload and stores the new user.
// A taken email surfaces as apperror.ErrConflict from the store.
func (s *UserService) Create(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	if err := s.validator.ValidateCreate(req); err != nil {
		return nil, err
	}

	user := req.User()
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.metrics.RecordUserWrite("create")
	s.logger.Info("user created",
		slog.String("id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// GetByID retrieves a user by ID.
// Returns apperror.ErrNotFound if the user doesn't exist.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.NotFound("User", id)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

// List returns one page of users. Invalid parameters fall back to their
// defaults (page 1, size 10, newest first), so List only fails on store faults.
func (s *UserService) List(ctx context.Context, p query.Params) (*Page, error) {
	w := query.NewWindow(p)

	users, total, err := s.repo.List(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return &Page{
		Total: total,
		Page:  w.Page,
		Size:  w.Limit,
		Users: users,
	}, nil
}

// Update validates a partial update and applies it.
// At least one field must be present; absent fields are left unchanged.
func (s *UserService) Update(ctx context.Context, id string, req model.UpdateUserRequest) (*model.User, error) {
	if err := s.validator.ValidateUpdate(req); err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.NotFound("User", id)
	}

	user, err := s.repo.Update(ctx, id, req.Patch())
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}

	s.metrics.RecordUserWrite("update")
	s.logger.Info("user updated", slog.String("id", user.ID))

	return user, nil
}

// Delete removes a user by ID.
// Returns apperror.ErrNotFound if the user doesn't exist.
func (s *UserService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.NotFound("User", id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	s.metrics.RecordUserWrite("delete")
	s.logger.Info("user deleted", slog.String("id", id))
	return nil
}

// Aggregate validates the city/age flags, builds the stage list and runs it
// against the whole collection.
func (s *UserService) Aggregate(ctx context.Context, q url.Values) ([]pipeline.Document, error) {
	flags, err := s.validator.ParseAggregateQuery(q)
	if err != nil {
		return nil, err
	}

	stages := pipeline.Build(flags.ByCity, flags.ByAge)

	rows, err := s.repo.Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregating users: %w", err)
	}

	s.metrics.RecordAggregation(len(stages))
	s.logger.Debug("aggregation finished",
		slog.String("pipeline", pipeline.Describe(stages)),
		slog.Int("rows", len(rows)),
	)

	return rows, nil
}
