package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"book-club-system/apperrors"
	"book-club-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
)

// maxSlugSuffix is the last numbered suffix tried before falling back to a
// random one.
const maxSlugSuffix = 20

// CoverUploader stores a club cover image under key and returns its public URL.
type CoverUploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

type CreateClubInput struct {
	Name        string `json:"name" validate:"required,min=3,max=80"`
	Description string `json:"description" validate:"max=1000"`
}

type ClubService struct {
	Store       Store
	Progression Awarder
	Uploader    CoverUploader
	Log         zerolog.Logger
}

func NewClubService(store Store, progression Awarder, uploader CoverUploader, log zerolog.Logger) *ClubService {
	return &ClubService{
		Store:       store,
		Progression: progression,
		Uploader:    uploader,
		Log:         log,
	}
}

// CreateClub creates the club and its OWNER membership together, then
// grants CREAR_CLUB.
func (s *ClubService) CreateClub(ctx context.Context, ownerID string, input CreateClubInput) (*models.Club, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequestError("club name is required")
	}

	var club *models.Club
	err := s.Store.WithinTx(ctx, func(tx Store) error {
		if _, err := tx.GetUser(ctx, ownerID); err != nil {
			return err
		}

		clubSlug, err := uniqueSlug(ctx, tx, name)
		if err != nil {
			return err
		}

		club = &models.Club{
			Name:        name,
			Slug:        clubSlug,
			Description: strings.TrimSpace(input.Description),
			OwnerID:     ownerID,
		}
		if err := tx.CreateClub(ctx, club); err != nil {
			return err
		}

		owner := models.ClubMembership{ClubID: club.ID, UserID: ownerID, Role: models.ClubRoleOwner}
		if err := tx.CreateMembership(ctx, &owner); err != nil {
			return err
		}
		club.Members = []models.ClubMembership{owner}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().Str("club_id", club.ID).Str("slug", club.Slug).Str("user_id", ownerID).Msg("club created")
	if s.Progression != nil {
		if _, err := s.Progression.Award(ctx, ownerID, models.ActionCreateClub); err != nil {
			s.Log.Error().Err(err).Str("user_id", ownerID).Str("club_id", club.ID).Msg("create club xp award failed")
		}
	}
	return club, nil
}

func uniqueSlug(ctx context.Context, store ClubStore, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "club"
	}

	candidate := base
	for i := 2; i <= maxSlugSuffix+1; i++ {
		taken, err := store.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// GetClub returns the club with its members.
func (s *ClubService) GetClub(ctx context.Context, clubID string) (*models.Club, error) {
	club, err := s.Store.GetClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	members, err := s.Store.ListMembers(ctx, clubID)
	if err != nil {
		return nil, err
	}
	club.Members = members
	return club, nil
}

// SetCover uploads a cover image for the club. Owners and moderators only.
func (s *ClubService) SetCover(ctx context.Context, clubID, actorID, filename, contentType string, body io.Reader) (*models.Club, error) {
	if s.Uploader == nil {
		return nil, apperrors.NewBadRequestError("cover uploads are not configured")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperrors.NewBadRequestError("cover must be an image")
	}
	club, err := s.Store.GetClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if err := requireManager(ctx, s.Store, clubID, actorID); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("clubs/%s/cover-%s%s", club.ID, uuid.NewString()[:8], strings.ToLower(filepath.Ext(filename)))
	url, err := s.Uploader.Upload(ctx, key, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload cover: %w", err)
	}
	if err := s.Store.UpdateClubCover(ctx, clubID, url); err != nil {
		return nil, err
	}
	club.CoverURL = url
	return club, nil
}

// ChangeRole moves a member between MODERATOR and READER. Owner only.
func (s *ClubService) ChangeRole(ctx context.Context, clubID, actorID, userID string, role models.ClubRole) (*models.ClubMembership, error) {
	if role != models.ClubRoleModerator && role != models.ClubRoleReader {
		return nil, apperrors.NewBadRequestError("role must be MODERATOR or READER")
	}

	var membership *models.ClubMembership
	err := s.Store.WithinTx(ctx, func(tx Store) error {
		club, err := tx.GetClub(ctx, clubID)
		if err != nil {
			return err
		}
		if club.OwnerID != actorID {
			return apperrors.NewForbiddenError("only the club owner can change roles")
		}

		membership, err = tx.GetMembership(ctx, clubID, userID)
		if err != nil {
			return err
		}
		if membership.Role == models.ClubRoleOwner {
			return apperrors.NewBadRequestError("the owner's role cannot be changed")
		}
		if membership.Role == role {
			return nil
		}
		if err := tx.UpdateMemberRole(ctx, clubID, userID, role); err != nil {
			return err
		}
		membership.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}
	return membership, nil
}
