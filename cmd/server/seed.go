package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"studytracker-backend/internal/database"
	"studytracker-backend/internal/models"
	"studytracker-backend/internal/repository"
	"studytracker-backend/internal/services"
)

// seedFile is the YAML layout accepted by the seed command.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	Subject  string        `yaml:"subject"`
	Email    string        `yaml:"email"`
	Name     string        `yaml:"name"`
	Approved bool          `yaml:"approved"`
	Admin    bool          `yaml:"admin"`
	Books    []seedBook    `yaml:"books"`
	Sessions []seedSession `yaml:"sessions"`
}

type seedBook struct {
	Title    string `yaml:"title"`
	Author   string `yaml:"author"`
	Summary  string `yaml:"summary"`
	DateRead string `yaml:"date_read"`
}

type seedSession struct {
	Subject string `yaml:"subject"`
	Start   string `yaml:"start"`
	Minutes int    `yaml:"minutes"`
	Book    string `yaml:"book"` // title of one of the user's books
	Notes   string `yaml:"notes"`
}

type seedSummary struct {
	Users, Books, Sessions int
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load demo users, books and closed sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		data, err := decodeSeed(f)
		if err != nil {
			return err
		}

		store, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		sum, err := applySeed(cmd.Context(), store, data)
		if err != nil {
			return err
		}

		// A running server may hold a ranking that predates the new users.
		if cfg.RedisURL != "" {
			clients, err := database.NewRedisClients(cmd.Context(), cfg.RedisURL)
			if err != nil {
				return err
			}
			defer clients.Close()
			cache := services.NewRedisLeaderboardCache(clients.Cmd, cfg.LeaderboardCacheTTL)
			if err := cache.Invalidate(cmd.Context()); err != nil {
				logger.Warn().Err(err).Msg("Failed to invalidate leaderboard cache")
			}
		}
		color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(),
			"✓ Seeded %d users, %d books, %d sessions\n", sum.Users, sum.Books, sum.Sessions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func decodeSeed(r io.Reader) (*seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding seed file: %w", err)
	}
	return &f, nil
}

type seedStore interface {
	repository.UserRepository
	repository.BookRepository
	InsertSession(ctx context.Context, s *models.StudySession) error
}

// applySeed writes the file's records. Users are upserted by subject, so
// re-running a seed adds books and sessions again but never duplicates users.
func applySeed(ctx context.Context, store seedStore, f *seedFile) (seedSummary, error) {
	var sum seedSummary

	for _, su := range f.Users {
		subject := su.Subject
		if subject == "" {
			subject = "seed:" + strings.ToLower(su.Email)
		}
		user, err := store.EnsureUser(ctx, models.Identity{Subject: subject, Email: su.Email, Name: su.Name})
		if err != nil {
			return sum, fmt.Errorf("user %s: %w", su.Email, err)
		}
		if err := store.SetApproval(ctx, user.ID, su.Approved); err != nil {
			return sum, fmt.Errorf("user %s: %w", su.Email, err)
		}
		if su.Admin {
			if err := store.SetAdmin(ctx, user.ID, true); err != nil {
				return sum, fmt.Errorf("user %s: %w", su.Email, err)
			}
		}
		sum.Users++

		bookIDs := make(map[string]int64, len(su.Books))
		for _, sb := range su.Books {
			book := &models.Book{UserID: user.ID, Title: sb.Title}
			if sb.Author != "" {
				book.Author = &sb.Author
			}
			if sb.Summary != "" {
				book.Summary = &sb.Summary
			}
			if sb.DateRead != "" {
				t, err := services.ParseClientTime(sb.DateRead)
				if err != nil {
					return sum, fmt.Errorf("book %q: %w", sb.Title, err)
				}
				book.DateRead = t
			}
			if err := store.CreateBook(ctx, book); err != nil {
				return sum, fmt.Errorf("book %q: %w", sb.Title, err)
			}
			bookIDs[sb.Title] = book.ID
			sum.Books++
		}

		for _, ss := range su.Sessions {
			s, err := seedSessionFor(user.ID, ss, bookIDs)
			if err != nil {
				return sum, fmt.Errorf("user %s: %w", su.Email, err)
			}
			if err := store.InsertSession(ctx, s); err != nil {
				return sum, fmt.Errorf("user %s: %w", su.Email, err)
			}
			sum.Sessions++
		}
	}
	return sum, nil
}

func seedSessionFor(userID int64, ss seedSession, bookIDs map[string]int64) (*models.StudySession, error) {
	if strings.TrimSpace(ss.Subject) == "" {
		return nil, fmt.Errorf("session without subject")
	}
	if ss.Minutes < 0 {
		return nil, fmt.Errorf("session %q: negative minutes", ss.Subject)
	}
	start, err := services.ParseClientTime(ss.Start)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", ss.Subject, err)
	}

	end := start.Add(time.Duration(ss.Minutes) * time.Minute)
	minutes := ss.Minutes
	s := &models.StudySession{
		UserID:          userID,
		Subject:         strings.TrimSpace(ss.Subject),
		StartTime:       start,
		EndTime:         &end,
		DurationMinutes: &minutes,
	}
	if ss.Book != "" {
		id, ok := bookIDs[ss.Book]
		if !ok {
			return nil, fmt.Errorf("session %q: unknown book %q", ss.Subject, ss.Book)
		}
		s.BookID = &id
	}
	if ss.Notes != "" {
		notes := ss.Notes
		s.Notes = &notes
	}
	return s, nil
}
