package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/labflow/labflow/internal/domain/activity"
	"github.com/labflow/labflow/internal/domain/sequence"
	"github.com/labflow/labflow/internal/platform/apperr"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/internal/platform/validate"
)

type CodeGenerator interface {
	Next(ctx context.Context, kind sequence.Kind) (string, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, labID uuid.UUID, actorID, message, detail string) (*activity.Activity, error)
	Publish(ctx context.Context, acts ...*activity.Activity)
}

type Service struct {
	repo     Repository
	tx       db.Transactor
	codes    CodeGenerator
	activity ActivityRecorder
}

func NewService(repo Repository, tx db.Transactor, codes CodeGenerator, act ActivityRecorder) *Service {
	return &Service{repo: repo, tx: tx, codes: codes, activity: act}
}

func validateCustomer(c *Customer) error {
	c.PID = strings.TrimSpace(c.PID)
	if !validate.ThaiPID(c.PID) {
		return apperr.Validation("pid %q is not a valid 13-digit person id", c.PID)
	}
	if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
		return apperr.Validation("first_name and last_name are required")
	}
	if c.Title != "" && !contains(Titles, c.Title) {
		return apperr.Validation("unknown title %q", c.Title)
	}
	if c.Gender != "" && !contains(Genders, c.Gender) {
		return apperr.Validation("unknown gender %q", c.Gender)
	}
	return nil
}

// checkPID fails with ErrDuplicateCustomer when another customer of the lab
// already holds pid.
func (s *Service) checkPID(ctx context.Context, labID uuid.UUID, pid string, self uuid.UUID) error {
	existing, err := s.repo.GetByPID(ctx, labID, pid)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != self:
		return fmt.Errorf("pid %s is registered as HN %s: %w", pid, existing.HN, apperr.ErrDuplicateCustomer)
	}
	return nil
}

// Register stores a new customer under a freshly generated HN.
func (s *Service) Register(ctx context.Context, c *Customer, actorID string) error {
	if err := validateCustomer(c); err != nil {
		return err
	}
	var act *activity.Activity
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.checkPID(ctx, c.LabID, c.PID, uuid.Nil); err != nil {
			return err
		}
		hn, err := s.codes.Next(ctx, sequence.KindHN)
		if err != nil {
			return err
		}
		c.HN = hn
		if err := s.repo.Create(ctx, c); err != nil {
			return err
		}
		act, err = s.activity.Record(ctx, c.LabID, actorID, activity.MsgAddCustomer, c.HN+" "+c.FullName())
		return err
	})
	if err != nil {
		c.HN = ""
		return err
	}
	s.activity.Publish(ctx, act)
	return nil
}

// Update edits a customer's details. HN and lab never change.
func (s *Service) Update(ctx context.Context, c *Customer) error {
	current, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	c.HN, c.LabID, c.CreatedAt = current.HN, current.LabID, current.CreatedAt
	if err := validateCustomer(c); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if c.PID != current.PID {
			if err := s.checkPID(ctx, c.LabID, c.PID, c.ID); err != nil {
				return err
			}
		}
		return s.repo.Update(ctx, c)
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByHN(ctx context.Context, hn string) (*Customer, error) {
	return s.repo.GetByHN(ctx, hn)
}

func (s *Service) Search(ctx context.Context, labID uuid.UUID, query string, limit, offset int) ([]*Customer, int, error) {
	return s.repo.Search(ctx, labID, strings.TrimSpace(query), limit, offset)
}
