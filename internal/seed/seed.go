// Package seed provisions the admin account and agent roster at startup.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

// Member is one roster entry.
type Member struct {
	Name     string   `yaml:"name"`
	Email    string   `yaml:"email"`
	Password string   `yaml:"password"`
	Role     string   `yaml:"role"`
	Skills   []string `yaml:"skills"`
	Active   *bool    `yaml:"active"`
}

// Roster is the YAML document listing accounts to provision.
type Roster struct {
	Agents []Member `yaml:"agents"`
}

// LoadRoster reads a roster file. A missing path yields an empty roster.
func LoadRoster(path string) (Roster, error) {
	if path == "" {
		return Roster{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("read roster %s: %w", path, err)
	}
	return ParseRoster(raw)
}

// ParseRoster decodes and validates a roster. Unknown keys and unknown skill
// categories are rejected.
func ParseRoster(raw []byte) (Roster, error) {
	var roster Roster
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&roster); err != nil && !errors.Is(err, io.EOF) {
		return Roster{}, fmt.Errorf("decode roster: %w", err)
	}
	for i, m := range roster.Agents {
		if strings.TrimSpace(m.Email) == "" {
			return Roster{}, fmt.Errorf("roster entry %d: email is required", i)
		}
		if m.Role != "" && !domain.Role(m.Role).Valid() {
			return Roster{}, fmt.Errorf("roster entry %s: unknown role %q", m.Email, m.Role)
		}
		for _, skill := range m.Skills {
			if !domain.Category(skill).Valid() {
				return Roster{}, fmt.Errorf("roster entry %s: unknown skill %q", m.Email, skill)
			}
		}
	}
	return roster, nil
}

// Seeder creates accounts that do not exist yet. Existing emails are left untouched.
type Seeder struct {
	tx         repository.Transactor
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

// NewSeeder builds a Seeder.
func NewSeeder(tx repository.Transactor, bcryptCost int, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{tx: tx, bcryptCost: bcryptCost, logger: logger, now: time.Now}
}

// Run seeds the admin account, when a password is configured, and the roster.
func (s *Seeder) Run(ctx context.Context, cfg config.SeedConfig, roster Roster) error {
	var members []Member
	if cfg.AdminPassword != "" {
		members = append(members, Member{
			Name:     "Administrator",
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
			Role:     string(domain.RoleAdmin),
		})
	}
	members = append(members, roster.Agents...)

	created := 0
	for _, m := range members {
		ok, err := s.ensure(ctx, m)
		if err != nil {
			return err
		}
		if ok {
			created++
		}
	}
	s.logger.Info("seeding finished", zap.Int("created", created), zap.Int("total", len(members)))
	return nil
}

func (s *Seeder) ensure(ctx context.Context, m Member) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(m.Email))
	role := domain.Role(m.Role)
	if role == "" {
		role = domain.RoleAgent
	}
	active := true
	if m.Active != nil {
		active = *m.Active
	}

	created := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context, store repository.Store) error {
		if _, err := store.Users().GetByEmail(ctx, email); err == nil {
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		// accounts without a password cannot log in but can still be routed tickets
		var hash string
		if m.Password != "" {
			var err error
			if hash, err = auth.HashPassword(m.Password, s.bcryptCost); err != nil {
				return fmt.Errorf("hash password for %s: %w", email, err)
			}
		}
		now := s.now().UTC()
		user := &domain.User{
			Name:         m.Name,
			Email:        email,
			PasswordHash: hash,
			Role:         role,
			IsActive:     active,
			SkillSet:     domain.SkillSetFromStrings(m.Skills),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := store.Users().Create(ctx, user); err != nil {
			return fmt.Errorf("create %s: %w", email, err)
		}
		entry := domain.NewAuditEntry(domain.EntityUser, user.ID, domain.SystemActorID, domain.CreateDetail{}, now)
		if err := store.Audit().Append(ctx, &entry); err != nil {
			return err
		}
		created = true
		s.logger.Info("seeded account",
			zap.String("user_id", user.ID),
			zap.String("role", string(role)),
			zap.Strings("skills", user.SkillSet.Strings()))
		return nil
	})
	return created, err
}
