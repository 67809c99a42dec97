package services

import (
	"context"
	"errors"
	"strings"

	"book-club-system/apperrors"
	"book-club-system/metrics"
	"book-club-system/models"

	"github.com/rs/zerolog"
)

type AddBookInput struct {
	Title    string `json:"title" validate:"required,max=200"`
	Author   string `json:"author" validate:"max=120"`
	CoverURL string `json:"cover_url" validate:"omitempty,url"`
}

// BookStatusChange is the outcome of UpdateStatus. Award is set when the
// change completed the book for the club.
type BookStatusChange struct {
	Book  *models.Book     `json:"book"`
	Award *BulkAwardResult `json:"award,omitempty"`
}

type BookService struct {
	Store       Store
	Progression Awarder
	Awarder     ClubAwarder
	Log         zerolog.Logger
}

func NewBookService(store Store, progression Awarder, awarder ClubAwarder, log zerolog.Logger) *BookService {
	return &BookService{
		Store:       store,
		Progression: progression,
		Awarder:     awarder,
		Log:         log,
	}
}

// AddBook puts a book on the club's reading list. Members only; a title that
// normalises to an existing one in the same club is a conflict.
func (s *BookService) AddBook(ctx context.Context, clubID, userID string, input AddBookInput) (*models.Book, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequestError("book title is required")
	}

	var book *models.Book
	err := s.Store.WithinTx(ctx, func(tx Store) error {
		if _, err := tx.GetClub(ctx, clubID); err != nil {
			return err
		}
		if _, err := tx.GetMembership(ctx, clubID, userID); err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return apperrors.NewForbiddenError("only club members can add books")
			}
			return err
		}

		normalized := models.NormalizeTitle(title)
		if _, err := tx.FindBookByTitle(ctx, clubID, normalized); err == nil {
			return apperrors.NewConflictError("book is already on this club's list").WithCode(apperrors.CodeDuplicateBook)
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		book = &models.Book{
			ClubID:          clubID,
			Title:           title,
			Author:          strings.TrimSpace(input.Author),
			NormalizedTitle: normalized,
			CoverURL:        input.CoverURL,
			Status:          models.BookStatusPending,
			AddedBy:         userID,
		}
		return tx.CreateBook(ctx, book)
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info().Str("club_id", clubID).Str("book_id", book.ID).Str("user_id", userID).Msg("book added")
	if s.Progression != nil {
		if _, err := s.Progression.Award(ctx, userID, models.ActionAddBook); err != nil {
			s.Log.Error().Err(err).Str("user_id", userID).Str("book_id", book.ID).Msg("add book xp award failed")
		}
	}
	return book, nil
}

// UpdateStatus moves a book along pendiente -> leyendo -> leido. Reaching
// leido credits every club member in the same transaction, so a failed award
// leaves the book status unchanged.
func (s *BookService) UpdateStatus(ctx context.Context, bookID, actorID string, status models.BookStatus) (*BookStatusChange, error) {
	if !status.Valid() {
		return nil, apperrors.NewBadRequestError("unknown book status")
	}

	var (
		change      *BookStatusChange
		awardFailed bool
	)
	err := s.Store.WithinTx(ctx, func(tx Store) error {
		book, err := tx.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if err := requireManager(ctx, tx, book.ClubID, actorID); err != nil {
			return err
		}

		change = &BookStatusChange{Book: book}
		if book.Status == status {
			return nil
		}
		if !book.Status.CanTransitionTo(status) {
			return apperrors.NewConflictError("cannot move book from " + string(book.Status) + " to " + string(status)).
				WithCode(apperrors.CodeInvalidStatus)
		}

		ok, err := tx.UpdateBookStatus(ctx, book.ID, book.Status, status)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewConflictError("book status changed concurrently").WithCode(apperrors.CodeConcurrentUpdate)
		}
		book.Status = status

		if status != models.BookStatusRead || s.Awarder == nil {
			return nil
		}
		award, err := s.Awarder.OnBookRead(ctx, tx, BookReadEvent{ClubID: book.ClubID, BookID: book.ID})
		if err != nil {
			awardFailed = true
			if errors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			return apperrors.NewTransactionError(err)
		}
		change.Award = award
		return nil
	})
	if err != nil {
		if awardFailed {
			metrics.RecordBulkAward(false)
			s.Log.Error().Err(err).Str("book_id", bookID).Msg("book completion rolled back")
		}
		return nil, err
	}

	if change.Award != nil {
		s.Awarder.AfterCommit(change.Award)
	}
	return change, nil
}
